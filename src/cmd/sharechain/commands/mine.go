package commands

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand"
	"time"

	"github.com/mosaicnetworks/sharechain/src/node"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/sirupsen/logrus"
)

// minerBatch is the number of header nonces tried on a template before a
// fresh one is built, so the miner follows new best shares and timestamps.
const minerBatch = 1 << 20

// mine grinds shares paying to script until ctx is done.
func mine(ctx context.Context, n *node.Node, script []byte, logger *logrus.Entry) {
	extraNonce := rand.Uint64()
	nonce := make([]byte, 8)

	for ctx.Err() == nil {
		extraNonce++
		binary.LittleEndian.PutUint64(nonce, extraNonce)

		tmpl, err := n.BuildTemplate(ctx, script, nonce)
		if errors.Is(err, node.ErrShutdown) {
			return
		}
		if err != nil {
			logger.WithError(err).Warn("Building template")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		s, err := tmpl.Solve(minerBatch)
		if errors.Is(err, share.ErrNotSolved) {
			continue
		}
		if err != nil {
			logger.WithError(err).Warn("Solving")
			continue
		}

		if err := n.SubmitShare(s); err != nil {
			logger.WithError(err).WithField("share", s.Hash()).Warn("Share rejected")
			continue
		}
		logger.WithField("share", s.Hash()).Info("Mined share")
	}
}
