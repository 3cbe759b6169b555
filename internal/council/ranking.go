package council

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const finalRankingMarker = "FINAL RANKING:"

var (
	numberedLabelRe = regexp.MustCompile(`\d+\.\s*\**(Response [A-Z]+)\b`)
	labelRe         = regexp.MustCompile(`Response [A-Z]+\b`)
)

// labeledResponse is a stage 1 answer under its anonymous label.
type labeledResponse struct {
	Label    string
	Model    string
	Response string
}

// labelFor returns the label for the i-th responder: Response A..Z, then AA, AB, ...
func labelFor(i int) string {
	var b []byte
	for n := i; ; n = n/26 - 1 {
		b = append([]byte{byte('A' + n%26)}, b...)
		if n < 26 {
			break
		}
	}
	return "Response " + string(b)
}

// anonymize labels the responders in the order given and returns the labeled
// answers with the label to model map.
func anonymize(responses []ModelResponse) ([]labeledResponse, map[string]string) {
	labeled := make([]labeledResponse, 0, len(responses))
	labelToModel := make(map[string]string, len(responses))
	for i, r := range responses {
		l := labelFor(i)
		labeled = append(labeled, labeledResponse{Label: l, Model: r.Model, Response: r.Response})
		labelToModel[l] = r.Model
	}
	return labeled, labelToModel
}

// labelLess orders labels the way they were assigned.
func labelLess(a, b string) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// ParseRanking extracts the ordered labels from an evaluation text. The numbered
// list after "FINAL RANKING:" wins; otherwise every label mention counts in order of
// appearance. Repeated labels keep their first position.
func ParseRanking(text string) []string {
	var found []string
	if i := strings.Index(text, finalRankingMarker); i >= 0 {
		section := text[i+len(finalRankingMarker):]
		for _, m := range numberedLabelRe.FindAllStringSubmatch(section, -1) {
			found = append(found, m[1])
		}
		if len(found) == 0 {
			found = labelRe.FindAllString(section, -1)
		}
	} else {
		found = labelRe.FindAllString(text, -1)
	}

	seen := make(map[string]bool, len(found))
	out := make([]string, 0, len(found))
	for _, l := range found {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// AggregateRankings combines the ranking submissions into one order over models.
//
// Every labeled model gets rosterSize-position points from every submission, where
// position is 1-based. Labels a submission does not mention are placed after the ones
// it does, in label order. Unknown labels are ignored. Submissions naming no known
// label contribute nothing. Equal scores keep label order.
func AggregateRankings(rankings []Ranking, labelToModel map[string]string, rosterSize int) []AggregateRank {
	labels := make([]string, 0, len(labelToModel))
	for l := range labelToModel {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labelLess(labels[i], labels[j]) })

	score := make(map[string]int, len(labels))
	positions := make(map[string][]int, len(labels))
	for _, r := range rankings {
		order := make([]string, 0, len(labels))
		placed := make(map[string]bool, len(labels))
		for _, l := range r.ParsedRanking {
			if _, ok := labelToModel[l]; ok && !placed[l] {
				placed[l] = true
				order = append(order, l)
			}
		}
		if len(order) == 0 {
			continue
		}
		explicit := len(order)
		for _, l := range labels {
			if !placed[l] {
				order = append(order, l)
			}
		}

		for i, l := range order {
			pos := i + 1
			score[l] += rosterSize - pos
			if i < explicit {
				positions[l] = append(positions[l], pos)
			}
		}
	}

	sort.SliceStable(labels, func(i, j int) bool { return score[labels[i]] > score[labels[j]] })

	out := make([]AggregateRank, 0, len(labels))
	for _, l := range labels {
		ar := AggregateRank{
			Model:         labelToModel[l],
			Score:         score[l],
			RankingsCount: len(positions[l]),
		}
		if n := len(positions[l]); n > 0 {
			sum := 0
			for _, p := range positions[l] {
				sum += p
			}
			ar.AverageRank = math.Round(float64(sum)/float64(n)*100) / 100
		}
		out = append(out, ar)
	}
	return out
}
