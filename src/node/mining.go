package node

import (
	"context"
	"time"

	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/sirupsen/logrus"
)

// BuildTemplate fetches work from the block source and prepares a share on
// top of the current best head, paying newScript.
func (n *Node) BuildTemplate(ctx context.Context, newScript []byte, nonce []byte) (*share.Template, error) {
	bt, err := n.source.PendingTransactionsAndTarget(ctx)
	if err != nil {
		return nil, err
	}

	var tmpl *share.Template
	var terr error
	err = n.do(func() {
		tmpl, terr = share.NewTemplate(n.tracker, n.params, &share.TemplateRequest{
			PreviousShare: n.BestShare(),
			NewScript:     newScript,
			Subsidy:       bt.Subsidy,
			Nonce:         nonce,
			BlockVersion:  bt.Version,
			PreviousBlock: bt.PreviousBlock,
			BlockBits:     bt.Bits,
			Transactions:  bt.Transactions,
			Timestamp:     time.Now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return tmpl, terr
}

// SubmitShare adds a locally solved share. Once verified it becomes a
// candidate best head and is relayed to peers.
func (n *Node) SubmitShare(s *share.Share) error {
	if !s.MeetsShareTarget() {
		return common.Failuref(common.ValidationFailure, "share %s does not meet its target", s.Hash())
	}

	var err error
	derr := n.do(func() {
		if _, err = n.tracker.Add(s, tracker.LocalPeer); err != nil {
			return
		}
		n.think()
		if status, _ := n.tracker.Status(s.Hash()); status == tracker.Invalid {
			err = common.Failuref(common.ValidationFailure, "share %s rejected", s.Hash())
		}
	})
	if derr != nil {
		return derr
	}
	if err == nil {
		n.logger.WithFields(logrus.Fields{
			"share":  s.Hash(),
			"target": s.Info.Target2,
		}).Info("Submitted share")
	}
	return err
}
