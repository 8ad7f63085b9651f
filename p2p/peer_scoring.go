package p2p

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/mezonai/chainsync/exception"
	"github.com/mezonai/chainsync/logx"
	"github.com/mezonai/chainsync/types"
)

type PeerScore struct {
	PeerID        peer.ID
	Score         float64
	LastUpdated   time.Time
	ValidBlocks   int
	InvalidBlocks int
	BadResponses  int
	ResponseTime  time.Duration
	LastSeen      time.Time
}

type PeerScoringConfig struct {
	ScoreDecayRate         float64
	ResponseTimeBonus      float64
	SlowResponsePenalty    float64
	AutoBlacklistThreshold float64
	ScoreUpdateInterval    time.Duration
}

func DefaultPeerScoringConfig() *PeerScoringConfig {
	return &PeerScoringConfig{
		// ~24h half-life per minute tick ≈ 0.9995
		ScoreDecayRate:         0.9995,
		ResponseTimeBonus:      0.2,
		SlowResponsePenalty:    -0.5,
		AutoBlacklistThreshold: -100.0,
		ScoreUpdateInterval:    1 * time.Minute,
	}
}

// PeerCloser disconnects a peer. network.Network satisfies it.
type PeerCloser interface {
	ClosePeer(peer.ID) error
}

// PeerScoringManager keeps a reputation per peer. Peers falling to the
// blacklist threshold are disconnected and refused.
type PeerScoringManager struct {
	scores    map[peer.ID]*PeerScore
	blacklist map[peer.ID]bool
	config    *PeerScoringConfig
	closer    PeerCloser
	mu        sync.RWMutex
	stopChan  chan struct{}
	stopOnce  sync.Once
}

func NewPeerScoringManager(closer PeerCloser, config *PeerScoringConfig) *PeerScoringManager {
	if config == nil {
		config = DefaultPeerScoringConfig()
	}

	psm := &PeerScoringManager{
		scores:    make(map[peer.ID]*PeerScore),
		blacklist: make(map[peer.ID]bool),
		config:    config,
		closer:    closer,
		stopChan:  make(chan struct{}),
	}

	exception.SafeGo("PeerScoring", psm.scoreManagementLoop)

	return psm
}

func (psm *PeerScoringManager) GetPeerScore(peerID peer.ID) float64 {
	psm.mu.RLock()
	defer psm.mu.RUnlock()

	if score, exists := psm.scores[peerID]; exists {
		return score.Score
	}
	return 0.0
}

func (psm *PeerScoringManager) scoreLocked(peerID peer.ID) *PeerScore {
	score, exists := psm.scores[peerID]
	if !exists {
		score = &PeerScore{
			PeerID:      peerID,
			LastUpdated: time.Now(),
			LastSeen:    time.Now(),
		}
		psm.scores[peerID] = score
	}
	return score
}

// ReportPeer applies a reputation change raised by sync or the fetcher.
func (psm *PeerScoringManager) ReportPeer(peerID peer.ID, change types.ReputationChange) {
	psm.mu.Lock()
	score := psm.scoreLocked(peerID)
	score.Score += change.Value

	switch change.Reason {
	case types.RepValidBlock.Reason:
		score.ValidBlocks++
	case types.RepInvalidBlock.Reason, types.RepUnknownParent.Reason:
		score.InvalidBlocks++
	case types.RepBadResponse.Reason:
		score.BadResponses++
	}

	score.LastUpdated = time.Now()
	score.LastSeen = time.Now()
	current := score.Score
	ban := current <= psm.config.AutoBlacklistThreshold && !psm.blacklist[peerID]
	if ban {
		psm.blacklist[peerID] = true
	}
	psm.mu.Unlock()

	logx.Info("PEER_SCORING", "Updated score for peer ", shortPeer(peerID),
		" score: ", current, " reason: ", change.Reason)
	if ban {
		psm.disconnect(peerID, current)
	}
}

// RecordResponseTime rewards fast responses and penalises slow ones.
func (psm *PeerScoringManager) RecordResponseTime(peerID peer.ID, responseTime time.Duration) {
	psm.mu.Lock()
	defer psm.mu.Unlock()

	score := psm.scoreLocked(peerID)
	score.ResponseTime = responseTime
	if responseTime < 500*time.Millisecond {
		score.Score += psm.config.ResponseTimeBonus
	} else if responseTime > 2*time.Second {
		score.Score += psm.config.SlowResponsePenalty
	}
	score.LastSeen = time.Now()
}

func (psm *PeerScoringManager) IsBlacklisted(peerID peer.ID) bool {
	psm.mu.RLock()
	defer psm.mu.RUnlock()
	return psm.blacklist[peerID]
}

func (psm *PeerScoringManager) disconnect(peerID peer.ID, score float64) {
	logx.Warn("PEER_SCORING", fmt.Sprintf("Auto-blacklisted peer %s (score: %.2f)", shortPeer(peerID), score))
	if psm.closer == nil {
		return
	}
	if err := psm.closer.ClosePeer(peerID); err != nil {
		logx.Error("PEER_SCORING", "Failed to disconnect blacklisted peer:", err)
	}
}

// RankPeers orders candidates by score, best first, leaving out blacklisted
// peers. Equal scores keep their input order.
func (psm *PeerScoringManager) RankPeers(candidates []peer.ID) []peer.ID {
	psm.mu.RLock()
	defer psm.mu.RUnlock()

	ranked := make([]peer.ID, 0, len(candidates))
	for _, p := range candidates {
		if !psm.blacklist[p] {
			ranked = append(ranked, p)
		}
	}
	scoreOf := func(p peer.ID) float64 {
		if s, ok := psm.scores[p]; ok {
			return s.Score
		}
		return 0
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return scoreOf(ranked[i]) > scoreOf(ranked[j])
	})
	return ranked
}

func (psm *PeerScoringManager) scoreManagementLoop() {
	ticker := time.NewTicker(psm.config.ScoreUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-psm.stopChan:
			return
		case <-ticker.C:
			psm.decayScores()
			psm.cleanupOldScores()
		}
	}
}

func (psm *PeerScoringManager) decayScores() {
	psm.mu.Lock()
	defer psm.mu.Unlock()

	for _, score := range psm.scores {
		score.Score *= psm.config.ScoreDecayRate

		if time.Since(score.LastSeen) > 24*time.Hour {
			score.Score *= 0.9
		}
	}
}

func (psm *PeerScoringManager) cleanupOldScores() {
	psm.mu.Lock()
	defer psm.mu.Unlock()

	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	for peerID, score := range psm.scores {
		if score.LastSeen.Before(cutoff) && score.Score < 10 && !psm.blacklist[peerID] {
			delete(psm.scores, peerID)
			logx.Info("PEER_SCORING", "Cleaned up old peer score: "+shortPeer(peerID))
		}
	}
}

func (psm *PeerScoringManager) GetPeerStats(peerID peer.ID) *PeerScore {
	psm.mu.RLock()
	defer psm.mu.RUnlock()

	if score, exists := psm.scores[peerID]; exists {
		stats := *score
		return &stats
	}
	return nil
}

func (psm *PeerScoringManager) Stop() {
	psm.stopOnce.Do(func() { close(psm.stopChan) })
}

func shortPeer(p peer.ID) string {
	s := p.String()
	if len(s) > 12 {
		return s[:12] + "..."
	}
	return s
}
