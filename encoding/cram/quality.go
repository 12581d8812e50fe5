package cram

import (
	"strconv"

	"github.com/biogo/hts/sam"
)

// preservationScope identifies which records/positions a PreservationPolicy
// entry applies to (DESIGN.md Open Question #3): '*' is a catch-all keyed on
// raw base quality, 'N' is gated on the per-position mismatch rate (requires
// ReferenceTracks), 'M' is gated on the record's mapping quality.
type preservationScope byte

const (
	scopeAll           preservationScope = '*'
	scopeMismatchRate  preservationScope = 'N'
	scopeMappingQual   preservationScope = 'M'
)

// PreservationPolicy is one parsed token of a quality_preservation_policy
// string: scope plus its integer threshold.
type PreservationPolicy struct {
	Scope     preservationScope
	Threshold int
}

// QualityPreservationPolicy is the parsed, ordered form of a
// quality_preservation_policy configuration string (spec.md §4.3). Tokens
// are tried in order; the first whose scope matches a given position wins.
type QualityPreservationPolicy struct {
	entries []PreservationPolicy
}

// parsePreservationPolicy parses a compact policy string into an ordered
// list of PreservationPolicy entries. Each token is one scope byte ('*',
// 'N', or 'M') followed by a decimal threshold, e.g. "N5M20*8". An empty
// string yields a nil policy, which the driver treats as lossless (spec.md
// §4.3: "when no policy is configured... lossless").
func parsePreservationPolicy(s string) (*QualityPreservationPolicy, error) {
	if s == "" {
		return nil, nil
	}
	var entries []PreservationPolicy
	i := 0
	for i < len(s) {
		scope := preservationScope(s[i])
		switch scope {
		case scopeAll, scopeMismatchRate, scopeMappingQual:
		default:
			return nil, errInvalidPolicyScope(s, scope)
		}
		i++
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if i == start {
			return nil, errInvalidPolicyThreshold(s, scope)
		}
		threshold, err := strconv.Atoi(s[start:i])
		if err != nil {
			return nil, errInvalidPolicyThreshold(s, scope)
		}
		entries = append(entries, PreservationPolicy{Scope: scope, Threshold: threshold})
	}
	return &QualityPreservationPolicy{entries: entries}, nil
}

func errInvalidPolicyScope(s string, scope preservationScope) error {
	return &ErrInvalidPolicy{Policy: s, Reason: "unknown scope byte " + strconv.QuoteRune(rune(scope))}
}

func errInvalidPolicyThreshold(s string, scope preservationScope) error {
	return &ErrInvalidPolicy{Policy: s, Reason: "scope " + strconv.QuoteRune(rune(scope)) + " missing decimal threshold"}
}

// ErrInvalidPolicy is returned by parsePreservationPolicy on a malformed
// configuration string.
type ErrInvalidPolicy struct {
	Policy string
	Reason string
}

func (e *ErrInvalidPolicy) Error() string {
	return "cram: invalid quality preservation policy " + strconv.Quote(e.Policy) + ": " + e.Reason
}

// requiresTracks reports whether the active policy consults coverage or
// mismatch counts, in which case §4.2's ReferenceTracks must have been
// populated before apply is called.
func (p *QualityPreservationPolicy) requiresTracks() bool {
	if p == nil {
		return false
	}
	for _, e := range p.entries {
		if e.Scope == scopeMismatchRate {
			return true
		}
	}
	return false
}

// apply chooses, per base position, whether cr's quality score is retained
// or masked to MaskedQualitySentinel, per spec.md §4.3. tracks may be nil
// when the policy does not requireTracks(). First matching scope wins, in
// the order the policy string listed them.
func (p *QualityPreservationPolicy) apply(rec *sam.Record, cr *CompressionRecord, alignmentStart int, tracks *ReferenceTracks) {
	if p == nil {
		cr.ForcePreserveQualityScores = cr.QualityScores != nil
		return
	}
	if len(p.entries) == 0 || cr.QualityScores == nil {
		return
	}
	cr.ForcePreserveQualityScores = false
	for pos := 0; pos < len(cr.QualityScores); pos++ {
		q := cr.QualityScores[pos]
		if q == MaskedQualitySentinel {
			continue
		}
		keep := false
		matched := false
		for _, e := range p.entries {
			switch e.Scope {
			case scopeAll:
				keep = int(q) >= e.Threshold
				matched = true
			case scopeMappingQual:
				keep = int(rec.MapQ) >= e.Threshold
				matched = true
			case scopeMismatchRate:
				if tracks == nil {
					continue
				}
				refPos := alignmentStart + pos
				cov := tracks.CoverageAt(refPos)
				if cov == 0 {
					keep = true
				} else {
					keep = tracks.MismatchesAt(refPos)*100 < e.Threshold*cov
				}
				matched = true
			}
			if matched {
				break
			}
		}
		if !matched {
			keep = true
		}
		if !keep {
			cr.QualityScores[pos] = MaskedQualitySentinel
		}
	}
}
