package metadata

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nlstn/go-odata-reader/internal/edm"
	"github.com/shopspring/decimal"
)

// EnumDescriber is implemented by Go enum types used with the odata:"enum=..." tag.
type EnumDescriber interface {
	EnumMembers() []edm.EnumMember
}

// PropertyMetadata holds what the analyzer learned about a struct field
// before it is turned into an EDM property.
type PropertyMetadata struct {
	Name      string
	Type      reflect.Type
	FieldName string
	JsonName  string
	GormTag   string
	ODataTag  string
	IsKey     bool
	// IsRequired marks the property as non-nullable regardless of the Go type.
	IsRequired        bool
	IsNavigationProp  bool
	NavigationIsArray bool
	IsStream          bool
	IsDynamic         bool
	IsBase            bool
	IsEnum            bool
	EnumTypeName      string
	IsFlags           bool
	// TypeName overrides the EDM type derived from the Go type (odata:"type=...").
	TypeName string
	Nullable *bool
}

// Analyzer builds EDM structured types from Go structs. Field names come
// from json tags; odata and gorm tags refine keys, nullability, navigation
// and streams. All discovered types are added to the analyzer's model.
type Analyzer struct {
	namespace string
	model     *edm.Model
	types     map[reflect.Type]edm.Type
}

// NewAnalyzer creates an analyzer that registers types under namespace in model.
func NewAnalyzer(namespace string, model *edm.Model) *Analyzer {
	if model == nil {
		model = edm.NewModel()
	}
	return &Analyzer{namespace: namespace, model: model, types: make(map[reflect.Type]edm.Type)}
}

// Model returns the model the analyzer registers types in.
func (a *Analyzer) Model() *edm.Model { return a.model }

// AnalyzeEntity extracts an entity type from a Go struct.
func (a *Analyzer) AnalyzeEntity(entity any) (*edm.StructuredType, error) {
	return a.analyzeValue(entity, edm.KindEntity)
}

// AnalyzeComplex extracts a complex type from a Go struct.
func (a *Analyzer) AnalyzeComplex(v any) (*edm.StructuredType, error) {
	return a.analyzeValue(v, edm.KindComplex)
}

func (a *Analyzer) analyzeValue(v any, kind edm.TypeKind) (*edm.StructuredType, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot analyze nil value")
	}
	t := dereferenceType(reflect.TypeOf(v))
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct, got %s", t.Kind())
	}
	return a.analyzeStruct(t, kind)
}

func (a *Analyzer) analyzeStruct(t reflect.Type, kind edm.TypeKind) (*edm.StructuredType, error) {
	if existing, ok := a.types[t]; ok {
		st, ok := existing.(*edm.StructuredType)
		if !ok {
			return nil, fmt.Errorf("type %s is already registered as %s", t, existing.Kind())
		}
		return st, nil
	}

	var st *edm.StructuredType
	if kind == edm.KindEntity {
		st = edm.NewEntityType(a.namespace, t.Name())
	} else {
		st = edm.NewComplexType(a.namespace, t.Name())
	}
	// registered before the fields so self references resolve
	a.types[t] = st

	fields, err := a.collectFields(t, st)
	if err != nil {
		delete(a.types, t)
		return nil, fmt.Errorf("error analyzing %s: %w", t.Name(), err)
	}
	for _, property := range fields {
		if err := a.addProperty(st, property); err != nil {
			delete(a.types, t)
			return nil, fmt.Errorf("error analyzing field %s: %w", property.FieldName, err)
		}
	}

	if kind == edm.KindEntity {
		if len(st.Keys) == 0 && st.BaseType == nil {
			delete(a.types, t)
			return nil, fmt.Errorf("entity %s must have at least one key property (use `odata:\"key\"` tag or name field 'ID')", st.Name)
		}
		st.HasStream = detectMediaEntity(t)
	}

	if err := a.model.AddType(st); err != nil {
		delete(a.types, t)
		return nil, err
	}
	return st, nil
}

// collectFields analyzes exported fields. Anonymous struct fields are
// flattened unless tagged odata:"base", which makes them the base type.
func (a *Analyzer) collectFields(t reflect.Type, st *edm.StructuredType) ([]PropertyMetadata, error) {
	var out []PropertyMetadata
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		if getJsonName(field) == "-" {
			continue
		}

		property, err := analyzeField(field)
		if err != nil {
			return nil, fmt.Errorf("error analyzing field %s: %w", field.Name, err)
		}

		if field.Anonymous && dereferenceType(field.Type).Kind() == reflect.Struct {
			if property.IsBase {
				base, err := a.analyzeStruct(dereferenceType(field.Type), st.Kind())
				if err != nil {
					return nil, err
				}
				st.BaseType = base
				continue
			}
			nested, err := a.collectFields(dereferenceType(field.Type), st)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}

		if property.IsDynamic {
			st.Open = true
			continue
		}
		out = append(out, property)
	}
	return out, nil
}

func analyzeField(field reflect.StructField) (PropertyMetadata, error) {
	property := PropertyMetadata{
		Name:      getJsonName(field),
		Type:      field.Type,
		FieldName: field.Name,
		JsonName:  getJsonName(field),
		GormTag:   field.Tag.Get("gorm"),
		ODataTag:  field.Tag.Get("odata"),
	}

	analyzeNavigationProperty(&property, field)
	analyzeODataTags(&property, field)

	if property.IsDynamic && dereferenceType(field.Type).Kind() != reflect.Map {
		return PropertyMetadata{}, fmt.Errorf("dynamic property container %s must be a map", field.Name)
	}

	// runs after the odata tags so an explicit nullable wins
	if err := autoDetectNullability(&property); err != nil {
		return PropertyMetadata{}, err
	}
	return property, nil
}

// analyzeNavigationProperty marks struct-typed fields with foreign key,
// references or many2many tags as navigation properties.
func analyzeNavigationProperty(property *PropertyMetadata, field reflect.StructField) {
	fieldType := field.Type
	isSlice := fieldType.Kind() == reflect.Slice
	if isSlice {
		fieldType = fieldType.Elem()
	}
	fieldType = dereferenceType(fieldType)
	if fieldType.Kind() != reflect.Struct {
		return
	}

	gormTag := field.Tag.Get("gorm")
	odataTag := field.Tag.Get("odata")
	hasNavInGorm := strings.Contains(gormTag, "foreignKey") || strings.Contains(gormTag, "references") || strings.Contains(gormTag, "many2many")
	hasNavInOData := strings.Contains(odataTag, "foreignKey:") || strings.Contains(odataTag, "references:") ||
		strings.Contains(odataTag, "many2many:") || containsTagPart(odataTag, "navigation")

	if hasNavInGorm || hasNavInOData {
		property.IsNavigationProp = true
		property.NavigationIsArray = isSlice
	}
}

// analyzeODataTags processes the comma separated parts of the odata tag.
func analyzeODataTags(property *PropertyMetadata, field reflect.StructField) {
	if odataTag := field.Tag.Get("odata"); odataTag != "" {
		for _, part := range strings.Split(odataTag, ",") {
			processODataTagPart(property, strings.TrimSpace(part))
		}
	}
	if field.Name == "ID" && !property.IsNavigationProp {
		property.IsKey = true
	}
}

func processODataTagPart(property *PropertyMetadata, part string) {
	switch {
	case part == "key":
		property.IsKey = true
	case part == "required":
		property.IsRequired = true
	case part == "nullable":
		nullable := true
		property.Nullable = &nullable
	case part == "nullable=false":
		nullable := false
		property.Nullable = &nullable
	case part == "stream":
		property.IsStream = true
	case part == "dynamic":
		property.IsDynamic = true
	case part == "base":
		property.IsBase = true
	case strings.HasPrefix(part, "enum="):
		property.IsEnum = true
		property.EnumTypeName = strings.TrimPrefix(part, "enum=")
	case part == "flags":
		property.IsFlags = true
		property.IsEnum = true
	case strings.HasPrefix(part, "type="):
		property.TypeName = strings.TrimPrefix(part, "type=")
	}
}

func (a *Analyzer) addProperty(st *edm.StructuredType, property PropertyMetadata) error {
	if property.IsNavigationProp {
		elem := property.Type
		if property.NavigationIsArray {
			elem = elem.Elem()
		}
		target, err := a.analyzeStruct(dereferenceType(elem), edm.KindEntity)
		if err != nil {
			return err
		}
		nullable := property.Nullable == nil || *property.Nullable
		st.AddNavigationProperty(property.Name, target, property.NavigationIsArray, nullable)
		return nil
	}

	ref, err := a.typeReference(property)
	if err != nil {
		return err
	}
	st.AddStructuralProperty(property.Name, ref)
	if property.IsKey {
		st.Keys = append(st.Keys, property.Name)
	}
	return nil
}

func (a *Analyzer) typeReference(property PropertyMetadata) (*edm.TypeReference, error) {
	nullable := property.Nullable == nil || *property.Nullable
	if property.IsKey || property.IsRequired {
		nullable = false
	}

	if property.IsStream {
		return edm.PrimitiveRef(edm.PrimitiveStream, nullable), nil
	}
	if property.TypeName != "" {
		t := a.model.FindType(edm.NormalizeTypeName(property.TypeName))
		if t == nil {
			return nil, fmt.Errorf("unknown type %s", property.TypeName)
		}
		return edm.NewTypeReference(t, nullable), nil
	}
	if property.IsEnum {
		enum, err := a.enumType(property)
		if err != nil {
			return nil, err
		}
		return edm.NewTypeReference(enum, nullable), nil
	}

	t, err := a.goType(property.Type)
	if err != nil {
		return nil, err
	}
	return edm.NewTypeReference(t, nullable), nil
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	decimalType  = reflect.TypeOf(decimal.Decimal{})
	uuidType     = reflect.TypeOf(uuid.UUID{})
	dateType     = reflect.TypeOf(edm.Date{})
	timeOfDay    = reflect.TypeOf(edm.TimeOfDay{})
	bytesType    = reflect.TypeOf([]byte(nil))
)

// goType maps a Go type to an EDM type. Unsigned integers wider than a
// byte map to UInt16/UInt32/UInt64 type definitions in the analyzer's namespace.
func (a *Analyzer) goType(t reflect.Type) (edm.Type, error) {
	t = dereferenceType(t)
	switch t {
	case timeType:
		return edm.PrimitiveTypeOf(edm.PrimitiveDateTimeOffset), nil
	case durationType:
		return edm.PrimitiveTypeOf(edm.PrimitiveDuration), nil
	case decimalType:
		return edm.PrimitiveTypeOf(edm.PrimitiveDecimal), nil
	case uuidType:
		return edm.PrimitiveTypeOf(edm.PrimitiveGuid), nil
	case dateType:
		return edm.PrimitiveTypeOf(edm.PrimitiveDate), nil
	case timeOfDay:
		return edm.PrimitiveTypeOf(edm.PrimitiveTimeOfDay), nil
	case bytesType:
		return edm.PrimitiveTypeOf(edm.PrimitiveBinary), nil
	}

	switch t.Kind() {
	case reflect.String:
		return edm.PrimitiveTypeOf(edm.PrimitiveString), nil
	case reflect.Bool:
		return edm.PrimitiveTypeOf(edm.PrimitiveBoolean), nil
	case reflect.Int8:
		return edm.PrimitiveTypeOf(edm.PrimitiveSByte), nil
	case reflect.Uint8:
		return edm.PrimitiveTypeOf(edm.PrimitiveByte), nil
	case reflect.Int16:
		return edm.PrimitiveTypeOf(edm.PrimitiveInt16), nil
	case reflect.Int32:
		return edm.PrimitiveTypeOf(edm.PrimitiveInt32), nil
	case reflect.Int, reflect.Int64:
		return edm.PrimitiveTypeOf(edm.PrimitiveInt64), nil
	case reflect.Uint16:
		return a.unsignedDefinition("UInt16", edm.PrimitiveInt32)
	case reflect.Uint32:
		return a.unsignedDefinition("UInt32", edm.PrimitiveInt64)
	case reflect.Uint, reflect.Uint64:
		return a.unsignedDefinition("UInt64", edm.PrimitiveDecimal)
	case reflect.Float32:
		return edm.PrimitiveTypeOf(edm.PrimitiveSingle), nil
	case reflect.Float64:
		return edm.PrimitiveTypeOf(edm.PrimitiveDouble), nil
	case reflect.Interface:
		return edm.Untyped, nil
	case reflect.Slice, reflect.Array:
		elem, err := a.goType(t.Elem())
		if err != nil {
			return nil, err
		}
		return edm.NewCollectionType(edm.NewTypeReference(elem, isTypeNullable(t.Elem()))), nil
	case reflect.Struct:
		return a.analyzeStruct(t, edm.KindComplex)
	}
	return nil, fmt.Errorf("unsupported Go type %s", t)
}

func (a *Analyzer) unsignedDefinition(name string, underlying edm.PrimitiveKind) (edm.Type, error) {
	full := a.namespace + "." + name
	if t := a.model.FindType(full); t != nil {
		return t, nil
	}
	def := edm.NewTypeDefinition(a.namespace, name, underlying)
	if err := a.model.AddType(def); err != nil {
		return nil, err
	}
	return def, nil
}

func (a *Analyzer) enumType(property PropertyMetadata) (*edm.EnumType, error) {
	goType := dereferenceType(property.Type)
	name := property.EnumTypeName
	if name == "" {
		name = goType.Name()
	}
	if existing, ok := a.types[goType]; ok {
		if enum, ok := existing.(*edm.EnumType); ok {
			return enum, nil
		}
	}

	describer, ok := reflect.Zero(goType).Interface().(EnumDescriber)
	if !ok {
		return nil, fmt.Errorf("enum type %s must implement EnumMembers() []edm.EnumMember", goType)
	}
	underlying, err := enumUnderlyingKind(goType)
	if err != nil {
		return nil, err
	}

	enum := edm.NewEnumType(a.namespace, name, describer.EnumMembers()...)
	enum.Underlying = underlying
	enum.IsFlags = property.IsFlags
	if err := a.model.AddType(enum); err != nil {
		return nil, err
	}
	a.types[goType] = enum
	return enum, nil
}

func enumUnderlyingKind(t reflect.Type) (edm.PrimitiveKind, error) {
	switch t.Kind() {
	case reflect.Uint8:
		return edm.PrimitiveByte, nil
	case reflect.Int8:
		return edm.PrimitiveSByte, nil
	case reflect.Int16:
		return edm.PrimitiveInt16, nil
	case reflect.Int32, reflect.Uint16:
		return edm.PrimitiveInt32, nil
	case reflect.Int, reflect.Int64, reflect.Uint32:
		return edm.PrimitiveInt64, nil
	}
	return edm.PrimitiveNone, fmt.Errorf("unsupported enum underlying type %s", t.Kind())
}

// getJsonName extracts the JSON field name from struct tags
func getJsonName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag == "" {
		return field.Name
	}

	// Handle json:",omitempty" or json:"fieldname,omitempty"
	parts := strings.Split(jsonTag, ",")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}

	return field.Name
}

// detectMediaEntity checks if the entity implements a HasStream() bool method
func detectMediaEntity(t reflect.Type) bool {
	for _, candidate := range []reflect.Value{reflect.New(t).Elem(), reflect.New(t)} {
		method := candidate.MethodByName("HasStream")
		if method.IsValid() && method.Type().NumIn() == 0 && method.Type().NumOut() == 1 {
			result := method.Call(nil)
			if len(result) > 0 && result[0].Kind() == reflect.Bool {
				return result[0].Bool()
			}
		}
	}
	return false
}

func containsTagPart(tag, part string) bool {
	for _, p := range strings.Split(tag, ",") {
		if strings.TrimSpace(p) == part {
			return true
		}
	}
	return false
}

// isTypeNullable checks if a Go type can represent null values
func isTypeNullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	default:
		return false
	}
}

// hasGormNotNull checks if a GORM tag contains "not null" constraint
func hasGormNotNull(gormTag string) bool {
	return strings.Contains(gormTag, "not null")
}

// autoDetectNullability sets Nullable from the Go type and GORM constraints
// unless the odata tag already decided it.
func autoDetectNullability(property *PropertyMetadata) error {
	if property.IsNavigationProp {
		return nil
	}

	if property.Nullable != nil {
		if *property.Nullable && !isTypeNullable(property.Type) {
			return fmt.Errorf("property %s is marked as nullable with odata:\"nullable\" tag, but has non-nullable Go type %s (use *%s to make it nullable)",
				property.Name, property.Type, property.Type)
		}
		return nil
	}

	nullable := isTypeNullable(property.Type) && !hasGormNotNull(property.GormTag)
	property.Nullable = &nullable
	return nil
}

func dereferenceType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
