package game

import (
	"math/rand/v2"
	"strings"
)

const DefaultScrambleLength = 20

var (
	faces    = [...]string{"U", "D", "L", "R", "F", "B"}
	suffixes = [...]string{"", "'", "2"}
)

// axisOf groups opposite faces: U/D, L/R, F/B.
func axisOf(faceIdx int) int { return faceIdx / 2 }

// Scrambler produces move sequences where no two consecutive moves turn
// faces on the same axis.
type Scrambler struct {
	rng    *rand.Rand
	length int
}

func NewScrambler(rng *rand.Rand, length int) *Scrambler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if length <= 0 {
		length = DefaultScrambleLength
	}
	return &Scrambler{rng: rng, length: length}
}

func (s *Scrambler) Moves() []string {
	moves := make([]string, 0, s.length)
	prevAxis := -1
	for len(moves) < s.length {
		f := s.rng.IntN(len(faces))
		// 4 of 6 faces always pass, so this terminates quickly.
		if axisOf(f) == prevAxis {
			continue
		}
		prevAxis = axisOf(f)
		moves = append(moves, faces[f]+suffixes[s.rng.IntN(len(suffixes))])
	}
	return moves
}

func (s *Scrambler) Generate() string {
	return strings.Join(s.Moves(), " ")
}
