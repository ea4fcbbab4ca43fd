// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package voting

import (
	"github.com/plenum-io/plenum/database/models"
	"github.com/plenum-io/plenum/result"
)

// tallyVotes aggregates ledger rows into per-file counts. Every file id
// seen in the ledger gets an entry, so a file whose only votes are
// abstentions still tallies as 0/0/N and fails the strict-majority test.
func tallyVotes(votes []models.VoteDetail) map[string]models.FileTally {
	tallies := make(map[string]models.FileTally)
	for _, vote := range votes {
		tally := tallies[vote.FileID]
		switch vote.VoteResult {
		case models.VoteAgree:
			tally.Agree++
		case models.VoteDisagree:
			tally.Disagree++
		case models.VoteAbstain:
			tally.Abstain++
		}
		tallies[vote.FileID] = tally
	}
	return tallies
}

// voteMatrix rebuilds the country-by-file vote grid from ledger rows.
func voteMatrix(
	votes []models.VoteDetail,
) map[string]map[string]models.VoteChoice {
	matrix := make(map[string]map[string]models.VoteChoice)
	for _, vote := range votes {
		row, ok := matrix[vote.CountryID]
		if !ok {
			row = make(map[string]models.VoteChoice)
			matrix[vote.CountryID] = row
		}
		row[vote.FileID] = vote.VoteResult
	}
	return matrix
}

// Tally returns the per-file vote counts for the session, derived live
// from the ledger.
func (e *Engine) Tally(
	sessionID string,
) (map[string]models.FileTally, error) {
	store, err := e.router.Resolve(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to resolve store", err)
	}
	votes, err := store.ListVoteDetails(sessionID)
	if err != nil {
		return nil, result.NewInternalError("failed to list votes", err)
	}
	return tallyVotes(votes), nil
}

// TallyFile returns the vote counts for one file. A file with no ledger
// rows tallies as all zeroes, which fails the strict-majority test.
func (e *Engine) TallyFile(
	sessionID, fileID string,
) (models.FileTally, error) {
	tallies, err := e.Tally(sessionID)
	if err != nil {
		return models.FileTally{}, err
	}
	return tallies[fileID], nil
}
