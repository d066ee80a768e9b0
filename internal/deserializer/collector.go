package deserializer

import (
	"github.com/nlstn/go-odata-reader/internal/value"
)

// ScopeName is the property name under which annotations of the enclosing
// object itself (rather than of one of its properties) are recorded.
const ScopeName = ""

type propertyData struct {
	odata     []*value.InstanceAnnotation
	custom    []*value.InstanceAnnotation
	processed bool
	finalized bool
}

// Collector tracks, for one JSON object, which properties and annotations
// have been seen. It is reset and reused for sibling collection items.
type Collector struct {
	properties map[string]*propertyData
	// instance annotations already handled, keyed by annotation name
	instance map[string]struct{}
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		properties: make(map[string]*propertyData),
		instance:   make(map[string]struct{}),
	}
}

// Reset empties the collector so it can serve another scope.
func (c *Collector) Reset() {
	clear(c.properties)
	clear(c.instance)
}

func (c *Collector) data(propertyName string) *propertyData {
	d, ok := c.properties[propertyName]
	if !ok {
		d = &propertyData{}
		c.properties[propertyName] = d
	}
	return d
}

// RecordAnnotation stores an odata.* annotation for propertyName. An
// annotation recorded twice, or after the property itself was processed,
// is an error.
func (c *Collector) RecordAnnotation(propertyName, annotationName string, v any) error {
	d := c.data(propertyName)
	if d.processed && propertyName != ScopeName {
		return newError(CodePropertyAnnotationAfterValue,
			"annotation %q for property %q was found after the property", annotationName, propertyName).
			withProperty(propertyName)
	}
	for _, a := range d.odata {
		if a.Name == annotationName {
			return newError(CodeDuplicateProperty,
				"duplicate annotation %q for property %q", annotationName, propertyName).
				withProperty(propertyName)
		}
	}
	d.odata = append(d.odata, &value.InstanceAnnotation{Name: annotationName, Value: v})
	return nil
}

// RecordCustomAnnotation stores a custom annotation for propertyName.
func (c *Collector) RecordCustomAnnotation(propertyName, annotationName string, v any) error {
	d := c.data(propertyName)
	if d.processed && propertyName != ScopeName {
		return newError(CodePropertyAnnotationAfterValue,
			"annotation %q for property %q was found after the property", annotationName, propertyName).
			withProperty(propertyName)
	}
	for _, a := range d.custom {
		if a.Name == annotationName {
			return newError(CodeDuplicateAnnotation,
				"duplicate annotation %q for property %q", annotationName, propertyName).
				withProperty(propertyName)
		}
	}
	d.custom = append(d.custom, &value.InstanceAnnotation{Name: annotationName, Value: v})
	return nil
}

// AnnotationsFor returns the odata.* annotations recorded for propertyName in
// the order they were found.
func (c *Collector) AnnotationsFor(propertyName string) []*value.InstanceAnnotation {
	if d, ok := c.properties[propertyName]; ok {
		return d.odata
	}
	return nil
}

// Annotation returns one recorded odata.* annotation value.
func (c *Collector) Annotation(propertyName, annotationName string) (any, bool) {
	for _, a := range c.AnnotationsFor(propertyName) {
		if a.Name == annotationName {
			return a.Value, true
		}
	}
	return nil, false
}

// CustomAnnotationsFor returns the custom annotations recorded for propertyName.
func (c *Collector) CustomAnnotationsFor(propertyName string) []*value.InstanceAnnotation {
	if d, ok := c.properties[propertyName]; ok {
		return d.custom
	}
	return nil
}

// MarkProcessed records that the property itself has been reached.
// Annotations for it found afterwards are rejected.
func (c *Collector) MarkProcessed(propertyName string) {
	c.data(propertyName).processed = true
}

// MarkAnnotationProcessed records an instance annotation of the scope;
// seeing the same one twice is an error.
func (c *Collector) MarkAnnotationProcessed(annotationName string) error {
	if _, seen := c.instance[annotationName]; seen {
		return newError(CodeDuplicateAnnotation, "duplicate instance annotation %q", annotationName)
	}
	c.instance[annotationName] = struct{}{}
	return nil
}

// CheckDuplicate is called once per property when its value has been read
// or its nested resource info started. A second call for the same name in
// this scope fails.
func (c *Collector) CheckDuplicate(propertyName string) error {
	d := c.data(propertyName)
	if d.finalized {
		return newError(CodeDuplicateProperty, "duplicate property %q", propertyName).withProperty(propertyName)
	}
	d.finalized = true
	return nil
}
