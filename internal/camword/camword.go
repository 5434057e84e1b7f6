package camword

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// NumSpectrographs is the number of spectrographs addressable by a camword.
const NumSpectrographs = 10

// Bands lists the camera bands in canonical order.
var Bands = []byte{'b', 'r', 'z'}

// All is the camword covering every camera.
const All = "a0123456789"

// Set is a bitmask of cameras. Bit (band*NumSpectrographs + spectrograph) is
// set when the camera is present.
type Set uint32

const numBands = 3

const fullSet = Set(1<<(numBands*NumSpectrographs) - 1)

func bandIndex(band byte) int {
	for i, b := range Bands {
		if b == band {
			return i
		}
	}
	return -1
}

func bit(band, spectrograph int) Set {
	return 1 << (band*NumSpectrographs + spectrograph)
}

// Camera returns the set containing a single camera such as "b3".
func Camera(name string) (Set, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) != 2 {
		return 0, fmt.Errorf("camera %q: expected band letter and spectrograph digit", name)
	}
	band := bandIndex(name[0])
	if band < 0 {
		return 0, fmt.Errorf("camera %q: unknown band %q", name, name[0])
	}
	if name[1] < '0' || name[1] > '9' {
		return 0, fmt.Errorf("camera %q: invalid spectrograph", name)
	}
	return bit(band, int(name[1]-'0')), nil
}

// Parse decodes a camword. An empty string yields the empty set.
func Parse(word string) (Set, error) {
	word = strings.ToLower(strings.TrimSpace(word))
	var (
		set     Set
		current byte
	)
	for i := 0; i < len(word); i++ {
		c := word[i]
		switch {
		case c == 'a' || bandIndex(c) >= 0:
			if current != 0 && i > 0 && !isDigit(word[i-1]) {
				return 0, fmt.Errorf("camword %q: prefix %q has no spectrographs", word, current)
			}
			current = c
		case isDigit(c):
			if current == 0 {
				return 0, fmt.Errorf("camword %q: spectrograph %q without band prefix", word, c)
			}
			sp := int(c - '0')
			if current == 'a' {
				for band := range Bands {
					set |= bit(band, sp)
				}
			} else {
				set |= bit(bandIndex(current), sp)
			}
		default:
			return 0, fmt.Errorf("camword %q: unexpected character %q", word, c)
		}
	}
	if current != 0 && !isDigit(word[len(word)-1]) {
		return 0, fmt.Errorf("camword %q: prefix %q has no spectrographs", word, current)
	}
	return set, nil
}

// MustParse is Parse for trusted constants; it panics on malformed input.
func MustParse(word string) Set {
	set, err := Parse(word)
	if err != nil {
		panic(err)
	}
	return set
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// String renders the canonical camword: complete spectrographs under "a",
// then the remaining cameras per band.
func (s Set) String() string {
	s &= fullSet
	var b strings.Builder
	var complete []int
	for sp := 0; sp < NumSpectrographs; sp++ {
		if s.hasSpectrograph(sp) {
			complete = append(complete, sp)
		}
	}
	if len(complete) > 0 {
		b.WriteByte('a')
		for _, sp := range complete {
			b.WriteByte(byte('0' + sp))
		}
	}
	for band, letter := range Bands {
		started := false
		for sp := 0; sp < NumSpectrographs; sp++ {
			if s&bit(band, sp) == 0 || s.hasSpectrograph(sp) {
				continue
			}
			if !started {
				b.WriteByte(letter)
				started = true
			}
			b.WriteByte(byte('0' + sp))
		}
	}
	return b.String()
}

func (s Set) hasSpectrograph(sp int) bool {
	for band := range Bands {
		if s&bit(band, sp) == 0 {
			return false
		}
	}
	return true
}

// Cameras lists the individual camera names in band-major order.
func (s Set) Cameras() []string {
	out := make([]string, 0, s.Len())
	for band, letter := range Bands {
		for sp := 0; sp < NumSpectrographs; sp++ {
			if s&bit(band, sp) != 0 {
				out = append(out, string([]byte{letter, byte('0' + sp)}))
			}
		}
	}
	return out
}

// Len returns the number of cameras in the set.
func (s Set) Len() int { return bits.OnesCount32(uint32(s & fullSet)) }

// IsEmpty reports whether the set holds no cameras.
func (s Set) IsEmpty() bool { return s&fullSet == 0 }

// Intersect returns cameras present in both sets.
func (s Set) Intersect(other Set) Set { return s & other }

// Union returns cameras present in either set.
func (s Set) Union(other Set) Set { return (s | other) & fullSet }

// Difference returns cameras in s that are not in other.
func (s Set) Difference(other Set) Set { return s &^ other }

// Intersects reports whether the sets share at least one camera.
func (s Set) Intersects(other Set) bool { return s&other != 0 }

// Difference removes the cameras of remove from word and returns the
// canonical camword.
func Difference(word, remove string) (string, error) {
	base, err := Parse(word)
	if err != nil {
		return "", err
	}
	drop, err := Parse(remove)
	if err != nil {
		return "", err
	}
	return base.Difference(drop).String(), nil
}

// Amp identifies one amplifier of one camera.
type Amp struct {
	Camera string
	Amp    byte
}

func (a Amp) String() string { return a.Camera + string(a.Amp) }

var ampNames = []byte{'A', 'B', 'C', 'D'}

// ErrBadAmp indicates a malformed bad-amplifier entry.
var ErrBadAmp = errors.New("invalid bad amplifier")

// ParseBadAmps decodes a comma or semicolon separated list of
// "{band}{spectrograph}{amp}" entries. Duplicates are dropped; order of first
// appearance is kept.
func ParseBadAmps(value string) ([]Amp, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
	seen := make(map[Amp]struct{}, len(fields))
	out := make([]Amp, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if len(field) != 3 {
			return nil, fmt.Errorf("%w %q", ErrBadAmp, field)
		}
		camera := strings.ToLower(field[:2])
		if _, err := Camera(camera); err != nil {
			return nil, fmt.Errorf("%w %q: %v", ErrBadAmp, field, err)
		}
		amp := strings.ToUpper(field[2:])[0]
		if amp < 'A' || amp > 'D' {
			return nil, fmt.Errorf("%w %q: amplifier must be A-D", ErrBadAmp, field)
		}
		entry := Amp{Camera: camera, Amp: amp}
		if _, ok := seen[entry]; ok {
			continue
		}
		seen[entry] = struct{}{}
		out = append(out, entry)
	}
	return out, nil
}

// FullyBad returns the cameras whose four amplifiers all appear in amps.
func FullyBad(amps []Amp) Set {
	counts := make(map[string]map[byte]struct{})
	for _, a := range amps {
		if counts[a.Camera] == nil {
			counts[a.Camera] = make(map[byte]struct{}, len(ampNames))
		}
		counts[a.Camera][a.Amp] = struct{}{}
	}
	var set Set
	for camera, seen := range counts {
		if len(seen) < len(ampNames) {
			continue
		}
		if cam, err := Camera(camera); err == nil {
			set |= cam
		}
	}
	return set
}

// Effective returns the cameras a job must process: camword minus badcamword
// minus cameras with every amplifier listed as bad.
func Effective(word, badCamword, badAmps string) (Set, error) {
	base, err := Parse(word)
	if err != nil {
		return 0, err
	}
	bad, err := Parse(badCamword)
	if err != nil {
		return 0, fmt.Errorf("badcamword: %w", err)
	}
	amps, err := ParseBadAmps(badAmps)
	if err != nil {
		return 0, err
	}
	return base.Difference(bad).Difference(FullyBad(amps)), nil
}
