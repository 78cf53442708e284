package buttons

import "fmt"

// KeyCode is a Linux input-event key code. The numeric values are the
// kernel ABI from input-event-codes.h, so they match what evdev reports
// without translation.
type KeyCode uint16

// keyNames is the closed set of keys a button device may bind. Limited to
// US-layout keyboard keys without modifiers, because that is what the
// rig's repurposed USB foot switches present themselves as.
var keyNames = map[string]KeyCode{
	"KEY_ESC":        1,
	"KEY_1":          2,
	"KEY_2":          3,
	"KEY_3":          4,
	"KEY_4":          5,
	"KEY_5":          6,
	"KEY_6":          7,
	"KEY_7":          8,
	"KEY_8":          9,
	"KEY_9":          10,
	"KEY_0":          11,
	"KEY_MINUS":      12,
	"KEY_EQUAL":      13,
	"KEY_BACKSPACE":  14,
	"KEY_TAB":        15,
	"KEY_Q":          16,
	"KEY_W":          17,
	"KEY_E":          18,
	"KEY_R":          19,
	"KEY_T":          20,
	"KEY_Y":          21,
	"KEY_U":          22,
	"KEY_I":          23,
	"KEY_O":          24,
	"KEY_P":          25,
	"KEY_LEFTBRACE":  26,
	"KEY_RIGHTBRACE": 27,
	"KEY_ENTER":      28,
	"KEY_A":          30,
	"KEY_S":          31,
	"KEY_D":          32,
	"KEY_F":          33,
	"KEY_G":          34,
	"KEY_H":          35,
	"KEY_J":          36,
	"KEY_K":          37,
	"KEY_L":          38,
	"KEY_SEMICOLON":  39,
	"KEY_APOSTROPHE": 40,
	"KEY_GRAVE":      41,
	"KEY_BACKSLASH":  43,
	"KEY_Z":          44,
	"KEY_X":          45,
	"KEY_C":          46,
	"KEY_V":          47,
	"KEY_B":          48,
	"KEY_N":          49,
	"KEY_M":          50,
	"KEY_COMMA":      51,
	"KEY_DOT":        52,
	"KEY_SLASH":      53,
	"KEY_SPACE":      57,
}

// keyCodeNames is the reverse of keyNames, built once at init.
var keyCodeNames = func() map[KeyCode]string {
	m := make(map[KeyCode]string, len(keyNames))
	for name, code := range keyNames {
		m[code] = name
	}
	return m
}()

// KeyCodeFromName resolves a configured key name like "KEY_R" to its
// code. Unknown names are a configuration error, caught at load time so
// no unmapped key ever reaches a running monitor.
func KeyCodeFromName(name string) (KeyCode, error) {
	code, ok := keyNames[name]
	if !ok {
		return 0, fmt.Errorf("buttons: unknown key name %q", name)
	}
	return code, nil
}

// String returns the evdev-style name of the key code.
func (k KeyCode) String() string {
	if name, ok := keyCodeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("KEY_%d", uint16(k))
}
