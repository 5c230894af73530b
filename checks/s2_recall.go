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

// FixtureNamespace marks all data the catalog stores in the target.
// Fixture ids are deterministic so repeated cycles are idempotent; the
// catalog never deletes anything.
const FixtureNamespace = "sentinel-fixture"

// goldenFact is one known fact with a paraphrased query expected to
// recall it at rank 1.
type goldenFact struct {
	ID      string
	Content string
	Query   string
}

// graphCase stores two linked contexts and asserts the relationship is
// queryable afterwards.
type graphCase struct {
	FromID   string
	ToID     string
	Relation string
}

// GoldenRecall (S2) stores a fixed fact set, retrieves it with
// paraphrased queries and scores precision-at-1 against the expected
// mapping. It also validates graph relationship cases. Pass iff
// P@1 >= Threshold and every graph case holds.
type GoldenRecall struct {
	Facts     []goldenFact
	Graph     []graphCase
	Threshold float64
}

// NewGoldenRecall returns the check with the default fixture set and a
// threshold of 1.0.
func NewGoldenRecall() *GoldenRecall {
	return &GoldenRecall{
		Facts: []goldenFact{
			{"sentinel-fix-1", "The capital of France is Paris.", "which city is the French capital"},
			{"sentinel-fix-2", "Water boils at 100 degrees Celsius at sea level.", "boiling point of water at sea level"},
			{"sentinel-fix-3", "The Go programming language was released in 2009.", "what year did Go come out"},
			{"sentinel-fix-4", "Mount Everest is the highest mountain above sea level.", "tallest mountain on earth"},
			{"sentinel-fix-5", "Photosynthesis converts sunlight into chemical energy.", "how do plants turn light into energy"},
		},
		Graph: []graphCase{
			{"sentinel-fix-1", "sentinel-fix-4", "related_to"},
			{"sentinel-fix-2", "sentinel-fix-5", "depends_on"},
		},
		Threshold: 1.0,
	}
}

type storeRequest struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type retrieveRequest struct {
	Query     string `json:"query"`
	Namespace string `json:"namespace"`
	Limit     int    `json:"limit"`
}

type retrieveResponse struct {
	Results []retrievedItem `json:"results"`
}

type retrievedItem struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

type graphQueryRequest struct {
	From     string `json:"from"`
	Relation string `json:"relation"`
}

type graphQueryResponse struct {
	Related []retrievedItem `json:"related"`
}

func (g *GoldenRecall) Run(ctx context.Context, env *check.Env) check.Result {
	if !env.Creds.HasAPIKey() {
		return check.CredentialMissing(env)
	}
	auth := map[string]string{env.Creds.HeaderName: env.Creds.APIKey}

	// Store phase. Fixture ids make this idempotent.
	for _, f := range g.Facts {
		req := storeRequest{
			ID:        f.ID,
			Namespace: FixtureNamespace,
			Content:   f.Content,
			Metadata:  map[string]any{"fixture": true},
		}
		resp, err := env.Probe.TimedPost(ctx, env.Endpoints.Store, req, 0, auth)
		if err != nil {
			return check.Errorf("storing fixture %s: %v", f.ID, err).
				WithDetails(probe.ErrorDetails(err))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return check.Fail(fmt.Sprintf("store of %s returned %d", f.ID, resp.StatusCode)).
				WithDetails(map[string]any{"fixture_id": f.ID, "status": resp.StatusCode})
		}
	}
	for _, gc := range g.Graph {
		req := storeRequest{
			ID:        gc.FromID,
			Namespace: FixtureNamespace,
			Metadata: map[string]any{
				"fixture":  true,
				"link_to":  gc.ToID,
				"relation": gc.Relation,
			},
		}
		resp, err := env.Probe.TimedPost(ctx, env.Endpoints.Store, req, 0, auth)
		if err != nil {
			return check.Errorf("storing graph link %s: %v", gc.FromID, err).
				WithDetails(probe.ErrorDetails(err))
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return check.Fail(fmt.Sprintf("graph link store returned %d", resp.StatusCode)).
				WithDetails(map[string]any{"from": gc.FromID, "status": resp.StatusCode})
		}
	}

	// Retrieve phase: P@1 over the paraphrased queries. Ties keep the
	// target-returned order, so index 0 is always the top-1 answer.
	correct := 0
	misses := map[string]string{}
	for _, f := range g.Facts {
		resp, err := env.Probe.TimedPost(ctx, env.Endpoints.Retrieve, retrieveRequest{
			Query:     f.Query,
			Namespace: FixtureNamespace,
			Limit:     3,
		}, 0, auth)
		if err != nil {
			return check.Errorf("retrieving %q: %v", f.Query, err).
				WithDetails(probe.ErrorDetails(err))
		}
		if resp.StatusCode != http.StatusOK {
			return check.Fail(fmt.Sprintf("retrieve returned %d", resp.StatusCode)).
				WithDetails(map[string]any{"query": f.Query, "status": resp.StatusCode})
		}
		var rr retrieveResponse
		if err := probe.ParseJSON(resp.Body, &rr); err != nil {
			return check.Fail("retrieve payload is not valid JSON").
				WithDetails(map[string]any{"error": err.Error()})
		}
		if len(rr.Results) > 0 && rr.Results[0].ID == f.ID {
			correct++
		} else {
			got := ""
			if len(rr.Results) > 0 {
				got = rr.Results[0].ID
			}
			misses[f.ID] = got
		}
	}
	p1 := float64(correct) / float64(len(g.Facts))

	// Graph phase.
	var graphFailures []string
	for _, gc := range g.Graph {
		resp, err := env.Probe.TimedPost(ctx, env.Endpoints.Query, graphQueryRequest{
			From:     gc.FromID,
			Relation: gc.Relation,
		}, 0, auth)
		if err != nil {
			return check.Errorf("graph query %s-%s: %v", gc.FromID, gc.Relation, err).
				WithDetails(probe.ErrorDetails(err))
		}
		found := false
		if resp.StatusCode == http.StatusOK {
			var qr graphQueryResponse
			if probe.ParseJSON(resp.Body, &qr) == nil {
				for _, item := range qr.Related {
					if item.ID == gc.ToID {
						found = true
						break
					}
				}
			}
		}
		if !found {
			graphFailures = append(graphFailures, fmt.Sprintf("%s-[%s]->%s", gc.FromID, gc.Relation, gc.ToID))
		}
	}

	details := map[string]any{
		"precision_at_1": p1,
		"threshold":      g.Threshold,
		"queries":        len(g.Facts),
		"correct":        correct,
	}
	if len(misses) > 0 {
		details["misses"] = misses
	}
	if len(graphFailures) > 0 {
		details["graph_failures"] = graphFailures
	}

	switch {
	case len(graphFailures) > 0:
		return check.Fail(fmt.Sprintf("%d graph relationship(s) not queryable", len(graphFailures))).
			WithDetails(details)
	case p1 < g.Threshold:
		return check.Fail(fmt.Sprintf("P@1 %.2f below threshold %.2f", p1, g.Threshold)).
			WithDetails(details)
	default:
		return check.Pass(fmt.Sprintf("P@1 %.2f over %d queries", p1, len(g.Facts))).
			WithDetails(details)
	}
}
