package domain

// ItemKey identifies an inventory item by its (emoji, name) pair.
type ItemKey struct {
	Emoji string
	Name  string
}

// PatentEmoji marks items that carry a patent record; settling such an item
// at auction also transfers ownership of the underlying patent.
const PatentEmoji = "📜"

// IsPatent reports whether the item represents a patent certificate.
func (k ItemKey) IsPatent() bool {
	return k.Emoji == PatentEmoji
}

// Holding is a non-negative quantity of one item owned by one user. A zero
// quantity is never persisted; absence means zero.
type Holding struct {
	GuildID  int64
	UserID   int64
	Item     ItemKey
	Quantity int64
}

// Patent is per-guild ownership of a word. Only ownership transfer is handled
// here; the censorship mini-game lives in the frontend.
type Patent struct {
	GuildID int64
	Word    string
	OwnerID int64
}
