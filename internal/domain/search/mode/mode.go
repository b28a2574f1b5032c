package mode

// Mode says how the colours of a colour filter combine.
type Mode string

// Colour filter modes.
const (
	// Or matches cards with at least one of the colours.
	Or Mode = "or"
	// And matches cards with all of the colours, possibly more.
	And Mode = "and"
	// Exactly matches cards with precisely the colours. With no colours
	// it selects colourless cards.
	Exactly Mode = "exactly"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Or || m == And || m == Exactly
}
