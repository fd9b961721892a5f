package tui

// holdTicks is how long one key press keeps its axis held. Terminals
// report presses and auto-repeat but never releases.
const holdTicks = 8

// Keyboard is the driver.InputSource fed by key presses. It is only
// touched from the bubbletea update loop, which also runs the driver.
type Keyboard struct {
	x, y int32
	hold int
}

func NewKeyboard() *Keyboard { return &Keyboard{} }

func (k *Keyboard) Axis(int32) (x, y int32) { return k.x, k.y }

// press holds one axis and leaves the other untouched, so diagonal
// movement comes from alternating auto-repeats.
func (k *Keyboard) press(x, y int32) {
	if x != 0 {
		k.x = x
	}
	if y != 0 {
		k.y = y
	}
	k.hold = holdTicks
}

// decay releases both axes once the hold expires.
func (k *Keyboard) decay() {
	if k.hold > 0 {
		k.hold--
		if k.hold == 0 {
			k.x, k.y = 0, 0
		}
	}
}
