package odata

import (
	"context"
	"strings"
	"testing"
)

func TestParsePayloadKind(t *testing.T) {
	tests := []struct {
		in      string
		want    PayloadKind
		wantErr bool
	}{
		{"resource", PayloadResource, false},
		{"Resource-Set", PayloadResourceSet, false},
		{"refs", PayloadEntityReferenceLinks, false},
		{"entity", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePayloadKind(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePayloadKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePayloadKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReaderRead(t *testing.T) {
	r, orderType := newOrderReader(t, ReaderConfig{})
	ctx := context.Background()

	got, err := r.Read(ctx, strings.NewReader(orderPayload), PayloadResource, orderType)
	if err != nil {
		t.Fatalf("Read(resource) error = %v", err)
	}
	if _, ok := got.(*Resource); !ok {
		t.Errorf("Read(resource) = %T, want *Resource", got)
	}

	intType, err := r.TypeRef("Edm.Int32", false)
	if err != nil {
		t.Fatalf("TypeRef() error = %v", err)
	}
	got, err = r.Read(ctx, strings.NewReader(`{"value":[1,2]}`), PayloadCollection, intType)
	if err != nil {
		t.Fatalf("Read(collection) error = %v", err)
	}
	if c, ok := got.(*CollectionValue); !ok || len(c.Items) != 2 {
		t.Errorf("Read(collection) = %#v, want two items", got)
	}

	got, err = r.Read(ctx, strings.NewReader(`{"@odata.id":"http://host/Orders(1)"}`), PayloadEntityReferenceLink, nil)
	if err != nil {
		t.Fatalf("Read(ref) error = %v", err)
	}
	if l, ok := got.(*EntityReferenceLink); !ok || l.URL.String() != "http://host/Orders(1)" {
		t.Errorf("Read(ref) = %#v, want link to Orders(1)", got)
	}

	if _, err := r.Read(ctx, strings.NewReader(`{}`), "bogus", nil); err == nil {
		t.Error("Read(bogus) error = nil, want error")
	}
}
