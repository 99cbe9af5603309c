package order

// IDGenerator issues order ids. The id format must suit the configured store: the
// MongoDB store only accepts ObjectID hex strings.
type IDGenerator interface {
	NewID() string
}
