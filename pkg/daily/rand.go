package daily

import "math"

const (
	arc4Width  = 256
	arc4Chunks = 6
	arc4Digits = 52
)

var (
	arc4StartDenom  = math.Pow(arc4Width, arc4Chunks)
	arc4Significand = math.Pow(2, arc4Digits)
	arc4Overflow    = arc4Significand * 2
)

// Rand is a string-seeded ARC4 generator producing the same sequence of
// doubles as the seedrandom JavaScript library, so a seed gives the same
// puzzle in a browser and here.
type Rand struct {
	i, j uint8
	s    [arc4Width]uint8
}

// NewRand seeds a generator from a string
func NewRand(seed string) *Rand {
	key := mixKey(seed)
	r := &Rand{}
	for i := range r.s {
		r.s[i] = uint8(i)
	}

	var j uint8
	for i := 0; i < arc4Width; i++ {
		t := r.s[i]
		j += key[i%len(key)] + t
		r.s[i] = r.s[j]
		r.s[j] = t
	}

	// discard the first 256 bytes of keystream
	r.g(arc4Width)
	return r
}

// mixKey hashes the seed's UTF-16 code units into a key of at most 256 bytes
func mixKey(seed string) []uint8 {
	var key []int
	var smear int
	for j, c := range utf16Units(seed) {
		idx := j & (arc4Width - 1)
		for len(key) <= idx {
			key = append(key, 0)
		}
		smear ^= key[idx] * 19
		key[idx] = (smear + int(c)) & (arc4Width - 1)
	}
	if len(key) == 0 {
		key = []int{0}
	}
	out := make([]uint8, len(key))
	for i, k := range key {
		out[i] = uint8(k)
	}
	return out
}

func utf16Units(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			units = append(units, uint16(0xD800+(r>>10)), uint16(0xDC00+(r&0x3FF)))
			continue
		}
		units = append(units, uint16(r))
	}
	return units
}

// g returns the next count keystream bytes as one big-endian number
func (r *Rand) g(count int) float64 {
	var out float64
	i, j, s := r.i, r.j, &r.s
	for ; count > 0; count-- {
		i++
		t := s[i]
		j += t
		s[i] = s[j]
		s[j] = t
		out = out*arc4Width + float64(s[s[i]+s[j]])
	}
	r.i, r.j = i, j
	return out
}

// Float64 returns a double in [0, 1) with 52 bits of randomness
func (r *Rand) Float64() float64 {
	n := r.g(arc4Chunks)
	d := arc4StartDenom
	var x float64
	for n < arc4Significand {
		n = (n + x) * arc4Width
		d *= arc4Width
		x = r.g(1)
	}
	for n >= arc4Overflow {
		n /= 2
		d /= 2
		x = float64(uint32(x) >> 1)
	}
	return (n + x) / d
}

// Intn returns an int in [0, n)
func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Floor(r.Float64() * float64(n)))
}
