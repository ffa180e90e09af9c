package lang

// Kind identifies a Node's computational behavior.
type Kind uint8

const (
	And Kind = iota
	Or
	Xor
	Not
	Ps // rising-edge detector
	Ns // falling-edge detector
	Sr // set-dominant bistable
	Rs // reset-dominant bistable
	Ton
	Tof
	Ctu
	Ctd
	Lt
	Gt
	Eq
	Btn
)

var kindNames = [...]string{
	And: "AND", Or: "OR", Xor: "XOR", Not: "NOT", Ps: "PS", Ns: "NS",
	Sr: "SR", Rs: "RS", Ton: "TON", Tof: "TOF", Ctu: "CTU", Ctd: "CTD",
	Lt: "LT", Gt: "GT", Eq: "EQ", Btn: "BTN",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "?"
}

// KindFromKeyword maps a source keyword to its Kind. ok is false for any
// keyword the language does not recognize.
func KindFromKeyword(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), true
		}
	}
	return 0, false
}

// Node is one computational unit in a Program's node list: a kind, a name,
// ordered input and output signal IDs, the source line it originated on,
// and kind-specific static parameters.
type Node struct {
	Kind    Kind
	Name    string
	Inputs  []int
	Outputs []int
	Line    int // 1-based source line

	// PresetTime is the hard-coded preset for TON/TOF, in seconds. It is
	// used only when HasPresetTime is set; otherwise the scan engine applies
	// the default (3s).
	PresetTime float64
	// PresetCount is the hard-coded preset for CTU/CTD. Zero is a valid
	// preset (an already-satisfied counter).
	PresetCount int
	// HasPresetTime/HasPresetCount distinguish "no literal preset given" from
	// "preset given as zero".
	HasPresetTime  bool
	HasPresetCount bool

	// CVOutput is the signal ID of a CTU/CTD's optional second (analog)
	// output carrying the counter's current value. -1 if absent.
	CVOutput int
}

// IsSynthetic reports whether n was generated by the parser to desugar an
// inline NOT/PS/NS operator, rather than written by the user.
func (n *Node) IsSynthetic() bool {
	return len(n.Name) > 0 && n.Name[0] == '_'
}
