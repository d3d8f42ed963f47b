package imap

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Constants

// seqStar is the sentinel for the '*' wildcard inside a
// sequence set, standing for the highest number in use.
const seqStar = uint32(0)

// Structs

// SeqRange is one element of a sequence set: either a single
// number, or an inclusive range between two bounds. A bound
// of seqStar denotes the '*' wildcard.
type SeqRange struct {
	Start uint32
	End   uint32
}

// SeqSet is the parsed form of an IMAP sequence set, the
// comma-separated union of numbers and ranges.
type SeqSet []SeqRange

// Functions

// parseSeqNumber parses one sequence number token, which is
// either a positive decimal number or the '*' wildcard.
func parseSeqNumber(token string) (uint32, error) {

	if token == "*" {
		return seqStar, nil
	}

	num, err := strconv.ParseUint(token, 10, 32)
	if err != nil || num == 0 {
		return 0, fmt.Errorf("invalid sequence number '%s'", token)
	}

	return uint32(num), nil
}

// ParseSeqSet parses the textual form of a sequence set. Any
// malformed item renders the whole set invalid.
func ParseSeqSet(text string) (SeqSet, error) {

	if text == "" {
		return nil, fmt.Errorf("empty sequence set")
	}

	items := strings.Split(text, ",")

	set := make(SeqSet, 0, len(items))

	for _, item := range items {

		bounds := strings.Split(item, ":")

		switch len(bounds) {

		case 1:

			num, err := parseSeqNumber(bounds[0])
			if err != nil {
				return nil, err
			}

			set = append(set, SeqRange{Start: num, End: num})

		case 2:

			start, err := parseSeqNumber(bounds[0])
			if err != nil {
				return nil, err
			}

			end, err := parseSeqNumber(bounds[1])
			if err != nil {
				return nil, err
			}

			set = append(set, SeqRange{Start: start, End: end})

		default:
			return nil, fmt.Errorf("invalid sequence range '%s'", item)
		}
	}

	return set, nil
}

// Resolve expands the set against the highest number
// currently in use into a sorted slice of unique numbers.
// Numbers beyond max simply do not appear in the result,
// they are not an error.
func (set SeqSet) Resolve(max uint32) []uint32 {

	if max == 0 {
		return nil
	}

	wanted := make(map[uint32]struct{})

	for _, r := range set {

		start := r.Start
		end := r.End

		if start == seqStar {
			start = max
		}
		if end == seqStar {
			end = max
		}

		if start > end {
			start, end = end, start
		}

		if start > max {
			continue
		}
		if end > max {
			end = max
		}

		for n := start; n <= end; n++ {
			wanted[n] = struct{}{}
		}
	}

	nums := make([]uint32, 0, len(wanted))
	for n := range wanted {
		nums = append(nums, n)
	}

	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })

	return nums
}
