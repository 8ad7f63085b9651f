package types

// ReputationChange is the penalty or reward attached to a peer report.
type ReputationChange struct {
	Value  float64 `json:"value"`
	Reason string  `json:"reason"`
}

var (
	// RepInvalidBlock is reported when a peer served a block that failed verification.
	RepInvalidBlock = ReputationChange{Value: -80.0, Reason: "invalid_block"}
	// RepUnknownParent is reported when a peer served a block whose parent is unknown.
	RepUnknownParent = ReputationChange{Value: -20.0, Reason: "unknown_parent"}
	// RepBadResponse is reported when a response does not match the request.
	RepBadResponse = ReputationChange{Value: -10.0, Reason: "bad_response"}
	// RepValidBlock rewards a peer whose block was applied.
	RepValidBlock = ReputationChange{Value: 0.5, Reason: "valid_block"}
)
