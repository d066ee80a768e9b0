package odata

import (
	"context"
	"io"

	"github.com/nlstn/go-odata-reader/internal/async"
	"github.com/nlstn/go-odata-reader/internal/deserializer"
	"github.com/nlstn/go-odata-reader/internal/jsonsource"
)

// Read operation names, as used in spans and metrics.
const (
	opProperty             = "property"
	opCollection           = "collection"
	opResource             = "resource"
	opResourceSet          = "resource-set"
	opEntityReferenceLink  = "entity-reference-link"
	opEntityReferenceLinks = "entity-reference-links"
)

// Content encodings accepted by Decompress.
const (
	EncodingGzip    = jsonsource.EncodingGzip
	EncodingDeflate = jsonsource.EncodingDeflate
	EncodingZstd    = jsonsource.EncodingZstd
	EncodingLZ4     = jsonsource.EncodingLZ4
)

// Decompress wraps body with a decompressor for a Content-Encoding header
// value. An empty encoding or "identity" returns body unchanged.
func Decompress(body io.Reader, encoding string) (io.ReadCloser, error) {
	return jsonsource.Decode(body, encoding)
}

type readFunc[T any] func(ctx context.Context, d *deserializer.Deserializer) (T, error)

func (r *Reader) settings() deserializer.Settings {
	return deserializer.Settings{
		MaxNestingDepth:                   r.cfg.MaxNestingDepth,
		IEEE754Compatible:                 r.cfg.IEEE754Compatible,
		AllowUndeclaredProperties:         r.cfg.AllowUndeclaredProperties,
		ReadUntypedAsString:               r.cfg.ReadUntypedAsString,
		ReadUntypedCollectionAsCollection: r.cfg.ReadUntypedCollectionAsCollection,
		AllowTypeConflicts:                r.cfg.AllowTypeConflicts,
		ReadingRequest:                    r.cfg.ReadingRequest,
		EnableSimplifiedAnnotations:       r.cfg.EnableSimplifiedAnnotations,
		Annotations:                       r.annotations,
		BaseURI:                           r.baseURI,
		PrimitiveTypeGuesser:              r.guesser,
		ReadAsStream:                      r.readAsStream,
		Spatial:                           r.spatial,
		Logger:                            r.logger,
	}
}

func (r *Reader) sourceOptions() []jsonsource.Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cfg.Reordering {
		return []jsonsource.Option{jsonsource.WithReordering()}
	}
	return nil
}

// read runs fn over src with the reader's settings, recording the read
// when observability is configured.
func read[T any](ctx context.Context, r *Reader, op string, src jsonsource.Reader, fn readFunc[T]) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, span := r.observability.StartRead(ctx, op)
	d := deserializer.New(src, r.provider, r.settings())
	v, err := fn(ctx, d)
	span.End(ctx, d.PeakDepth(), errorCode(err), err)
	if err != nil {
		r.logger.Debug("Read failed", "operation", op, "error", err)
	}
	return v, err
}

func readBlocking[T any](ctx context.Context, r *Reader, op string, in io.Reader, fn readFunc[T]) (T, error) {
	src := jsonsource.NewReader(in, r.sourceOptions()...)
	defer src.Close()
	return read(ctx, r, op, src, fn)
}

// readAsync runs the read on its own goroutine over a suspending token
// source. Canceling ctx stops both the read and the token producer.
func readAsync[T any](ctx context.Context, r *Reader, op string, in io.Reader, fn readFunc[T]) *Future[T] {
	opts := r.sourceOptions()
	return async.Go(ctx, func(ctx context.Context) (T, error) {
		src := jsonsource.NewAsyncReader(ctx, in, opts...)
		defer src.Close()
		return read(ctx, r, op, src, fn)
	})
}

func propertyReader(expected *TypeReference) readFunc[*Property] {
	return func(ctx context.Context, d *deserializer.Deserializer) (*Property, error) {
		return d.ReadProperty(ctx, expected)
	}
}

func collectionReader(elem *TypeReference) readFunc[*CollectionValue] {
	return func(ctx context.Context, d *deserializer.Deserializer) (*CollectionValue, error) {
		return d.ReadCollection(ctx, elem)
	}
}

func resourceReader(expected *TypeReference) readFunc[*Resource] {
	return func(ctx context.Context, d *deserializer.Deserializer) (*Resource, error) {
		return d.ReadResource(ctx, expected)
	}
}

func resourceSetReader(elem *TypeReference) readFunc[*ResourceSet] {
	return func(ctx context.Context, d *deserializer.Deserializer) (*ResourceSet, error) {
		return d.ReadResourceSet(ctx, elem)
	}
}

func entityReferenceLinkReader(ctx context.Context, d *deserializer.Deserializer) (*EntityReferenceLink, error) {
	return d.ReadEntityReferenceLink(ctx)
}

func entityReferenceLinksReader(ctx context.Context, d *deserializer.Deserializer) (*EntityReferenceLinks, error) {
	return d.ReadEntityReferenceLinks(ctx)
}

// ReadProperty reads a top-level property payload ({"value": ...} or, for
// structured types, the object itself). expected may be nil for untyped reads.
func (r *Reader) ReadProperty(ctx context.Context, in io.Reader, expected *TypeReference) (*Property, error) {
	return readBlocking(ctx, r, opProperty, in, propertyReader(expected))
}

// ReadPropertyAsync is the suspending form of ReadProperty.
func (r *Reader) ReadPropertyAsync(ctx context.Context, in io.Reader, expected *TypeReference) *Future[*Property] {
	return readAsync(ctx, r, opProperty, in, propertyReader(expected))
}

// ReadCollection reads a top-level collection of primitive, enum or
// complex values with element type elem.
func (r *Reader) ReadCollection(ctx context.Context, in io.Reader, elem *TypeReference) (*CollectionValue, error) {
	return readBlocking(ctx, r, opCollection, in, collectionReader(elem))
}

// ReadCollectionAsync is the suspending form of ReadCollection.
func (r *Reader) ReadCollectionAsync(ctx context.Context, in io.Reader, elem *TypeReference) *Future[*CollectionValue] {
	return readAsync(ctx, r, opCollection, in, collectionReader(elem))
}

// ReadResource reads a single entity or complex instance, including all
// expanded content.
func (r *Reader) ReadResource(ctx context.Context, in io.Reader, expected *TypeReference) (*Resource, error) {
	return readBlocking(ctx, r, opResource, in, resourceReader(expected))
}

// ReadResourceAsync is the suspending form of ReadResource.
func (r *Reader) ReadResourceAsync(ctx context.Context, in io.Reader, expected *TypeReference) *Future[*Resource] {
	return readAsync(ctx, r, opResource, in, resourceReader(expected))
}

func resourceStreamReader(expected *TypeReference, fn func(*NestedResourceInfo) error) readFunc[*Resource] {
	return func(ctx context.Context, d *deserializer.Deserializer) (*Resource, error) {
		it, err := d.BeginResource(ctx, expected)
		if err != nil {
			return nil, err
		}
		for {
			info, err := it.Next(ctx)
			if err != nil {
				return nil, err
			}
			if info == nil {
				break
			}
			if err := fn(info); err != nil {
				return nil, err
			}
		}
		return it.End(ctx)
	}
}

// ReadResourceStream reads a resource and hands every nested resource info
// to fn as soon as it has been read. An error from fn stops the read.
func (r *Reader) ReadResourceStream(ctx context.Context, in io.Reader, expected *TypeReference, fn func(*NestedResourceInfo) error) (*Resource, error) {
	return readBlocking(ctx, r, opResource, in, resourceStreamReader(expected, fn))
}

// ReadResourceStreamAsync is the suspending form of ReadResourceStream. fn
// runs on the goroutine performing the read.
func (r *Reader) ReadResourceStreamAsync(ctx context.Context, in io.Reader, expected *TypeReference, fn func(*NestedResourceInfo) error) *Future[*Resource] {
	return readAsync(ctx, r, opResource, in, resourceStreamReader(expected, fn))
}

// ReadResourceSet reads a top-level resource set with element type elem.
func (r *Reader) ReadResourceSet(ctx context.Context, in io.Reader, elem *TypeReference) (*ResourceSet, error) {
	return readBlocking(ctx, r, opResourceSet, in, resourceSetReader(elem))
}

// ReadResourceSetAsync is the suspending form of ReadResourceSet.
func (r *Reader) ReadResourceSetAsync(ctx context.Context, in io.Reader, elem *TypeReference) *Future[*ResourceSet] {
	return readAsync(ctx, r, opResourceSet, in, resourceSetReader(elem))
}

// ReadEntityReferenceLink reads a single $ref payload.
func (r *Reader) ReadEntityReferenceLink(ctx context.Context, in io.Reader) (*EntityReferenceLink, error) {
	return readBlocking(ctx, r, opEntityReferenceLink, in, entityReferenceLinkReader)
}

// ReadEntityReferenceLinkAsync is the suspending form of ReadEntityReferenceLink.
func (r *Reader) ReadEntityReferenceLinkAsync(ctx context.Context, in io.Reader) *Future[*EntityReferenceLink] {
	return readAsync(ctx, r, opEntityReferenceLink, in, entityReferenceLinkReader)
}

// ReadEntityReferenceLinks reads a collection of $ref links.
func (r *Reader) ReadEntityReferenceLinks(ctx context.Context, in io.Reader) (*EntityReferenceLinks, error) {
	return readBlocking(ctx, r, opEntityReferenceLinks, in, entityReferenceLinksReader)
}

// ReadEntityReferenceLinksAsync is the suspending form of ReadEntityReferenceLinks.
func (r *Reader) ReadEntityReferenceLinksAsync(ctx context.Context, in io.Reader) *Future[*EntityReferenceLinks] {
	return readAsync(ctx, r, opEntityReferenceLinks, in, entityReferenceLinksReader)
}
