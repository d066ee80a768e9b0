package deserializer

import "testing"

func TestCollectorDuplicateTypeAnnotation(t *testing.T) {
	c := NewCollector()
	if err := c.RecordAnnotation("Name", annType, "Edm.String"); err != nil {
		t.Fatalf("RecordAnnotation() error = %v", err)
	}
	err := c.RecordAnnotation("Name", annType, "Edm.String")
	if !HasCode(err, CodeDuplicateProperty) {
		t.Errorf("RecordAnnotation() second call error = %v, want %s", err, CodeDuplicateProperty)
	}
	if got := len(c.AnnotationsFor("Name")); got != 1 {
		t.Errorf("len(AnnotationsFor()) = %d, want 1", got)
	}
}

func TestCollectorAnnotationAfterProperty(t *testing.T) {
	c := NewCollector()
	c.MarkProcessed("Name")
	err := c.RecordAnnotation("Name", annType, "Edm.String")
	if !HasCode(err, CodePropertyAnnotationAfterValue) {
		t.Errorf("RecordAnnotation() error = %v, want %s", err, CodePropertyAnnotationAfterValue)
	}
	if err := c.RecordCustomAnnotation(ScopeName, "NS.Note", "x"); err != nil {
		t.Errorf("RecordCustomAnnotation() on scope error = %v, want nil", err)
	}
}

func TestCollectorCheckDuplicate(t *testing.T) {
	c := NewCollector()
	if err := c.CheckDuplicate("Name"); err != nil {
		t.Fatalf("CheckDuplicate() error = %v", err)
	}
	if err := c.CheckDuplicate("Name"); !HasCode(err, CodeDuplicateProperty) {
		t.Errorf("CheckDuplicate() second call error = %v, want %s", err, CodeDuplicateProperty)
	}

	c.Reset()
	if err := c.CheckDuplicate("Name"); err != nil {
		t.Errorf("CheckDuplicate() after Reset error = %v, want nil", err)
	}
}

func TestCollectorInstanceAnnotations(t *testing.T) {
	c := NewCollector()
	if err := c.MarkAnnotationProcessed(annID); err != nil {
		t.Fatalf("MarkAnnotationProcessed() error = %v", err)
	}
	if err := c.MarkAnnotationProcessed(annID); !HasCode(err, CodeDuplicateAnnotation) {
		t.Errorf("MarkAnnotationProcessed() second call error = %v, want %s", err, CodeDuplicateAnnotation)
	}
}

func TestCollectorCustomAnnotations(t *testing.T) {
	c := NewCollector()
	if err := c.RecordCustomAnnotation("Name", "NS.A", 1); err != nil {
		t.Fatalf("RecordCustomAnnotation() error = %v", err)
	}
	if err := c.RecordCustomAnnotation("Name", "NS.B", 2); err != nil {
		t.Fatalf("RecordCustomAnnotation() error = %v", err)
	}
	if err := c.RecordCustomAnnotation("Name", "NS.A", 3); !HasCode(err, CodeDuplicateAnnotation) {
		t.Errorf("RecordCustomAnnotation() duplicate error = %v, want %s", err, CodeDuplicateAnnotation)
	}
	got := c.CustomAnnotationsFor("Name")
	if len(got) != 2 || got[0].Name != "NS.A" || got[1].Name != "NS.B" {
		t.Errorf("CustomAnnotationsFor() = %v, want NS.A then NS.B", got)
	}
	if _, ok := c.Annotation("Name", annType); ok {
		t.Errorf("Annotation() found odata.type, want none")
	}
}
