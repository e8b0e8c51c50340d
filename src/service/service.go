package service

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/sharechain/src/common"
	"github.com/mosaicnetworks/sharechain/src/node"
	"github.com/mosaicnetworks/sharechain/src/peers"
	"github.com/mosaicnetworks/sharechain/src/share"
	"github.com/mosaicnetworks/sharechain/src/tracker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Node is what the service reads from. *node.Node implements it.
type Node interface {
	GetStats() map[string]string
	GetPeers() []node.PeerInfo
	GetHeads() []node.HeadInfo
	GetShare(chainhash.Hash) (*share.Share, tracker.Status, error)
	GetAddresses() []peers.Entry
	Registry() *prometheus.Registry
}

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/heads", s.makeHandler(s.GetHeads))
	s.mux.HandleFunc("/share/", s.makeHandler(s.GetShare))
	s.mux.HandleFunc("/addresses", s.makeHandler(s.GetAddresses))
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.node.Registry(), promhttp.HandlerOpts{}))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetPeers())
}

// GetHeads ...
func (s *Service) GetHeads(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetHeads())
}

// ShareInfo is the JSON view of a share.
type ShareInfo struct {
	Hash          string    `json:"hash"`
	Previous      string    `json:"previous,omitempty"`
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Target        uint32    `json:"target"`
	Bits          uint32    `json:"bits"`
	PreviousBlock string    `json:"previous_block"`
	Subsidy       int64     `json:"subsidy"`
	NewScript     string    `json:"new_script"`
	Nonce         string    `json:"nonce"`
	Block         bool      `json:"block"`
}

// GetShare ...
func (s *Service) GetShare(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/share/"):]

	h, err := chainhash.NewHashFromStr(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing share hash %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	sh, status, err := s.node.GetShare(*h)
	if err != nil {
		code := http.StatusInternalServerError
		if common.IsStore(err, common.KeyNotFound) {
			code = http.StatusNotFound
		}

		http.Error(w, err.Error(), code)

		return
	}

	info := ShareInfo{
		Hash:          sh.Hash().String(),
		Status:        status.String(),
		Timestamp:     sh.Timestamp(),
		Target:        sh.Info.Target2,
		Bits:          sh.Header.Bits,
		PreviousBlock: sh.Header.PrevBlock.String(),
		Subsidy:       sh.Subsidy,
		NewScript:     hex.EncodeToString(sh.NewScript),
		Nonce:         hex.EncodeToString(sh.Info.Nonce),
		Block:         sh.MeetsBlockTarget(),
	}
	if prev := sh.PreviousHash(); prev != nil {
		info.Previous = prev.String()
	}

	writeJSON(w, info)
}

// GetAddresses ...
func (s *Service) GetAddresses(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Addr      string    `json:"addr"`
		Services  uint64    `json:"services"`
		FirstSeen time.Time `json:"first_seen"`
		LastSeen  time.Time `json:"last_seen"`
	}

	res := []entry{}
	for _, e := range s.node.GetAddresses() {
		res = append(res, entry{
			Addr:      e.Addr.String(),
			Services:  e.Services,
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
		})
	}

	writeJSON(w, res)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(v)
}
