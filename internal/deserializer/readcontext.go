package deserializer

// readContext carries the per-call-site flags of a value read. It is passed
// by value and never modified after construction.
type readContext struct {
	propertyName string
	// validateNull rejects null for non-nullable types.
	validateNull bool
	// insideResource means the caller already consumed the object's start.
	insideResource bool
	// dynamic marks values of undeclared properties.
	dynamic bool
	// collectionItem forbids nested collections.
	collectionItem bool
}

func (rc readContext) item() readContext {
	return readContext{propertyName: rc.propertyName, validateNull: true, collectionItem: true, dynamic: rc.dynamic}
}

// valueState distinguishes a missing value from a null one.
type valueState int

const (
	valueNotFound valueState = iota
	valueFound
	valueFoundNull
)
