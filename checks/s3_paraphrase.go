// Copyright 2025 The veris-sentinel Authors
// This file is part of veris-sentinel.
//
// veris-sentinel is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// veris-sentinel is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with veris-sentinel. If not, see <http://www.gnu.org/licenses/>.

package checks

import (
	"context"
	"fmt"
	"net/http"

	"github.com/veris-labs/sentinel/check"
	"github.com/veris-labs/sentinel/probe"
)

// Paraphrase (S3) is the optimized runtime variant of the paraphrase
// robustness suite: for a small topic sample it verifies that result
// sets overlap across paraphrases of the same question.
type Paraphrase struct {
	Topics [][]string // each entry: paraphrases of one topic
	// MinOverlap is the pass floor for the mean pairwise Jaccard
	// similarity of the retrieved id sets.
	MinOverlap float64
}

// NewParaphrase returns the runtime sample: 2 topics x 3 paraphrases.
func NewParaphrase() *Paraphrase {
	return &Paraphrase{
		Topics: [][]string{
			{
				"which city is the French capital",
				"what is the capital of France",
				"France's capital city",
			},
			{
				"boiling point of water at sea level",
				"at what temperature does water boil",
				"water boiling temperature sea level",
			},
		},
		MinOverlap: 0.5,
	}
}

func (p *Paraphrase) Run(ctx context.Context, env *check.Env) check.Result {
	if !env.Creds.HasAPIKey() {
		return check.CredentialMissing(env)
	}
	auth := map[string]string{env.Creds.HeaderName: env.Creds.APIKey}

	var overlaps []float64
	perTopic := map[string]float64{}
	for ti, paraphrases := range p.Topics {
		sets := make([]map[string]bool, 0, len(paraphrases))
		for _, q := range paraphrases {
			resp, err := env.Probe.TimedPost(ctx, env.Endpoints.Retrieve, retrieveRequest{
				Query:     q,
				Namespace: FixtureNamespace,
				Limit:     5,
			}, 0, auth)
			if err != nil {
				return check.Errorf("retrieving %q: %v", q, err).
					WithDetails(probe.ErrorDetails(err))
			}
			if resp.StatusCode != http.StatusOK {
				return check.Fail(fmt.Sprintf("retrieve returned %d", resp.StatusCode)).
					WithDetails(map[string]any{"query": q, "status": resp.StatusCode})
			}
			var rr retrieveResponse
			if err := probe.ParseJSON(resp.Body, &rr); err != nil {
				return check.Fail("retrieve payload is not valid JSON").
					WithDetails(map[string]any{"error": err.Error()})
			}
			set := make(map[string]bool, len(rr.Results))
			for _, item := range rr.Results {
				set[item.ID] = true
			}
			sets = append(sets, set)
		}
		topicMean := meanPairwiseJaccard(sets)
		perTopic[fmt.Sprintf("topic_%d", ti+1)] = topicMean
		overlaps = append(overlaps, topicMean)
	}

	var sum float64
	for _, v := range overlaps {
		sum += v
	}
	mean := sum / float64(len(overlaps))

	details := map[string]any{
		"mean_overlap": mean,
		"min_overlap":  p.MinOverlap,
		"per_topic":    perTopic,
	}
	if mean < p.MinOverlap {
		return check.Fail(fmt.Sprintf("paraphrase overlap %.2f below %.2f", mean, p.MinOverlap)).
			WithDetails(details)
	}
	return check.Pass(fmt.Sprintf("paraphrase overlap %.2f", mean)).WithDetails(details)
}

func meanPairwiseJaccard(sets []map[string]bool) float64 {
	if len(sets) < 2 {
		return 1
	}
	var sum float64
	var pairs int
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}
