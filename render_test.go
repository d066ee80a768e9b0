package odata

import (
	"context"
	"math"
	"net/url"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

func TestPlainResource(t *testing.T) {
	r, orderType := newOrderReader(t, ReaderConfig{})
	res, err := r.ReadResource(context.Background(), strings.NewReader(orderPayload), orderType)
	if err != nil {
		t.Fatalf("ReadResource() error = %v", err)
	}

	got, err := Plain(res)
	if err != nil {
		t.Fatalf("Plain() error = %v", err)
	}
	out, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Plain() = %T, want map[string]any", got)
	}
	if out["@odata.context"] != "http://host/svc/$metadata#Orders/$entity" {
		t.Errorf("@odata.context = %v", out["@odata.context"])
	}
	if out["@odata.type"] != "#"+DefaultNamespace+".Order" {
		t.Errorf("@odata.type = %v", out["@odata.type"])
	}
	if out["ID"] != int64(1) || out["Title"] != "First" {
		t.Errorf("ID, Title = %v, %v; want 1, First", out["ID"], out["Title"])
	}
	customer, ok := out["Customer"].(map[string]any)
	if !ok {
		t.Fatalf("Customer = %T, want map[string]any", out["Customer"])
	}
	if customer["Name"] != "Ann" {
		t.Errorf("Customer.Name = %v, want Ann", customer["Name"])
	}

	if _, err := json.Marshal(got); err != nil {
		t.Errorf("json.Marshal(Plain()) error = %v", err)
	}
}

func TestPlainNestedKinds(t *testing.T) {
	link := &url.URL{Scheme: "http", Host: "host", Path: "/Customers(1)"}
	res := &Resource{
		TypeName: "NS.Order",
		NestedResourceInfos: []*NestedResourceInfo{
			{Name: "Owner", Kind: NestedDeferred, URL: link},
			{Name: "Customer", Kind: NestedExpandedResource, Resource: &Resource{TypeName: "NS.Customer"}},
			{Name: "Lines", Kind: NestedExpandedResourceSet, ResourceSet: &ResourceSet{Items: []any{&Resource{}}}},
			{Name: "Tags", Kind: NestedEntityReferenceLinks, EntityReferenceLinks: []*EntityReferenceLink{{URL: link}}},
			{Name: "Photo", Kind: NestedStream, Stream: &StreamReferenceValue{ContentType: "image/png"}},
			{Name: "Docs", Kind: NestedStreamCollection, Streams: []*StreamReferenceValue{{}, {}}},
		},
	}

	got, err := Plain(res)
	if err != nil {
		t.Fatalf("Plain() error = %v", err)
	}
	out := got.(map[string]any)
	if out["Owner@odata.navigationLink"] != link.String() {
		t.Errorf("Owner@odata.navigationLink = %v, want %s", out["Owner@odata.navigationLink"], link)
	}
	if _, ok := out["Owner"]; ok {
		t.Errorf("deferred Owner rendered as %v, want only its link", out["Owner"])
	}
	if customer, _ := out["Customer"].(map[string]any); customer["@odata.type"] != "#NS.Customer" {
		t.Errorf("Customer = %v, want an expanded NS.Customer", out["Customer"])
	}
	if lines, _ := out["Lines"].([]any); len(lines) != 1 {
		t.Errorf("Lines = %v, want one item", out["Lines"])
	}
	if binds, _ := out["Tags@odata.bind"].([]any); len(binds) != 1 {
		t.Errorf("Tags@odata.bind = %v, want one link", out["Tags@odata.bind"])
	}
	if photo, _ := out["Photo"].(map[string]any); photo["@odata.mediaContentType"] != "image/png" {
		t.Errorf("Photo = %v, want the stream content type", out["Photo"])
	}
	if docs, _ := out["Docs"].([]any); len(docs) != 2 {
		t.Errorf("Docs = %v, want two streams", out["Docs"])
	}
}

func TestPlainScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"decimal", decimal.RequireFromString("1.50"), "1.5"},
		{"enum", &EnumValue{Value: "Red", TypeName: "NS.Color"}, "Red"},
		{"nan", math.NaN(), "NaN"},
		{"inf", math.Inf(1), "INF"},
		{"negative inf", float32(math.Inf(-1)), "-INF"},
		{"url", &url.URL{Scheme: "http", Host: "host", Path: "/a"}, "http://host/a"},
		{"int32", int32(5), int32(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plain(tt.in)
			if err != nil {
				t.Fatalf("Plain() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Plain() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestPlainUntyped(t *testing.T) {
	got, err := Plain(&UntypedValue{RawValue: `{"a":[1,2]}`})
	if err != nil {
		t.Fatalf("Plain() error = %v", err)
	}
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Plain() = %T, want map[string]any", got)
	}
	if items, ok := m["a"].([]any); !ok || len(items) != 2 {
		t.Errorf("a = %v, want two items", m["a"])
	}
}

func TestPlainEntityReferenceLinks(t *testing.T) {
	r, err := NewReader(nil)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	payload := `{"value":[{"@odata.id":"http://host/Orders(1)"}]}`
	links, err := r.ReadEntityReferenceLinks(context.Background(), strings.NewReader(payload))
	if err != nil {
		t.Fatalf("ReadEntityReferenceLinks() error = %v", err)
	}
	got, err := Plain(links)
	if err != nil {
		t.Fatalf("Plain() error = %v", err)
	}
	value := got.(map[string]any)["value"].([]any)
	if len(value) != 1 || value[0].(map[string]any)["@odata.id"] != "http://host/Orders(1)" {
		t.Errorf("value = %v, want one link to Orders(1)", value)
	}
}

func TestPlainUnsupported(t *testing.T) {
	if _, err := Plain(struct{}{}); err == nil {
		t.Error("Plain(struct{}{}) error = nil, want error")
	}
}
