package protocol

// Identity holds the fixed, per-session attributes of an emulated
// controller: the adapter MAC reported to the Switch and the colour bytes
// returned from the SPI colour region. Immutable for the life of a Server.
type Identity struct {
	Kind         Kind
	MAC          [6]byte
	BodyColour   [3]byte
	ButtonColour [3]byte
}

// DefaultBodyColour and DefaultButtonColour match the grey defaults real
// Pro Controllers report when no custom colour was flashed.
var (
	DefaultBodyColour   = [3]byte{0x82, 0x82, 0x82}
	DefaultButtonColour = [3]byte{0x0F, 0x0F, 0x0F}
)

// NewIdentity builds an Identity with the default colours for kind and mac,
// overridable by the caller before the Protocol is constructed.
func NewIdentity(kind Kind, mac [6]byte) Identity {
	return Identity{
		Kind:         kind,
		MAC:          mac,
		BodyColour:   DefaultBodyColour,
		ButtonColour: DefaultButtonColour,
	}
}
