// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package management implements spec §6.5's imperative command surface
// (initiate Hive, issue invite, status, members, approve/reject,
// mode change, request promotion, vouch, propose ban, topology, planner
// log) over github.com/gorilla/rpc's JSON-RPC transport, with a
// tier-based permission matrix wrapping every method: admin-like
// operations gated to the Hive's initiator, voting operations to
// Members, introspection open to any tier. The request/reply struct
// shape mirrors the teacher's own api package conventions (api/health's
// Checker/Checkable split) applied to a JSON-RPC service instead of a
// REST handler.
package management

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/luxfi/hive/bridge"
	"github.com/luxfi/hive/dispatch"
	"github.com/luxfi/hive/errkinds"
	"github.com/luxfi/hive/governance"
	"github.com/luxfi/hive/gossip"
	"github.com/luxfi/hive/member"
	"github.com/luxfi/hive/planner"
	"github.com/luxfi/hive/store"
	"github.com/luxfi/hive/types"
	"github.com/luxfi/hive/version"
	"github.com/luxfi/hive/wire"
	"github.com/luxfi/log"
)

// Level is the permission tier a management command requires.
type Level int

const (
	// LevelAny is introspection: open to any tier, including Neophyte.
	LevelAny Level = iota
	// LevelMember requires the caller be a current, non-banned Member.
	LevelMember
	// LevelAdmin requires the caller be this Hive's initiator/admin.
	LevelAdmin
)

// Node is the subset of host.Node the management surface needs directly:
// verifying a caller's signature over its request.
type Node interface {
	Verify(ctx context.Context, pubkey types.Pubkey, msg, sig []byte) (bool, error)
}

// IntentAnnouncer is the one Intent-protocol call "propose ban" makes.
type IntentAnnouncer interface {
	Announce(ctx context.Context, t types.IntentType, target string, hold, expiresIn time.Duration) (types.Intent, error)
}

// Service implements the JSON-RPC methods gorilla/rpc dispatches to. One
// Service is built per running node and registered with rpc.NewServer().
type Service struct {
	hiveID  string
	admin   types.Pubkey
	self    types.Pubkey
	node    Node
	db      *store.Store
	members *member.Registry
	gov     *governance.Engine
	gossipM *gossip.Manager
	planner *planner.Manager
	fanout  *dispatch.Fanout
	bridge  *bridge.Bridge
	intents IntentAnnouncer
	promotion member.PromotionConfig
	banHold    time.Duration
	banHorizon time.Duration
	signer  func(ctx context.Context, msg []byte) ([]byte, error)
	log     log.Logger
}

// New builds a management Service. signer is the host node's HSM Sign
// call, used only to counter-sign invite tickets and vouches the local
// operator issues.
func New(hiveID string, admin, self types.Pubkey, node Node, db *store.Store, members *member.Registry, gov *governance.Engine, gossipM *gossip.Manager, plannerM *planner.Manager, fanout *dispatch.Fanout, br *bridge.Bridge, intents IntentAnnouncer, promotion member.PromotionConfig, banHold, banHorizon time.Duration, signer func(ctx context.Context, msg []byte) ([]byte, error), logger log.Logger) *Service {
	return &Service{
		hiveID:     hiveID,
		admin:      admin,
		self:       self,
		node:       node,
		db:         db,
		members:    members,
		gov:        gov,
		gossipM:    gossipM,
		planner:    plannerM,
		fanout:     fanout,
		bridge:     br,
		intents:    intents,
		promotion:  promotion,
		banHold:    banHold,
		banHorizon: banHorizon,
		signer:     signer,
		log:        logger,
	}
}

// Auth accompanies every request: the caller's pubkey and its signature
// over the request's own payload (the concatenation of every other
// field, canonicalized by the caller). A local CLI talking to its own
// node over a loopback socket may set Caller to the node's own pubkey
// and omit Signature, since authorize skips signature verification for
// that caller — production multi-operator deployments
// always supply a real signature.
type Auth struct {
	Caller    types.Pubkey `json:"caller"`
	Signature []byte       `json:"signature"`
}

func (s *Service) authorize(ctx context.Context, a Auth, payload []byte, required Level) error {
	if a.Caller != s.self {
		ok, err := s.node.Verify(ctx, a.Caller, payload, a.Signature)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrap(errkinds.Unauthorised, "management: bad signature")
		}
	}

	switch required {
	case LevelAny:
		return nil
	case LevelAdmin:
		if a.Caller != s.admin {
			return errors.Wrap(errkinds.Unauthorised, "management: admin-only command")
		}
		return nil
	case LevelMember:
		ok, err := s.members.IsCurrentMember(a.Caller)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Wrap(errkinds.Unauthorised, "management: member-only command")
		}
		return nil
	default:
		return errors.Wrap(errkinds.Invariant, "management: unknown permission level")
	}
}

// InitHiveArgs starts a new Hive with this node as its admin.
type InitHiveArgs struct {
	Auth
	HiveID string `json:"hive_id"`
}

// InitHiveReply confirms the Hive identifier in effect.
type InitHiveReply struct {
	HiveID string `json:"hive_id"`
}

// InitHive is spec §6.5's "initiate Hive" command. It is only valid once
// per node — re-running it against an already-initiated Hive is a no-op
// that reports the existing id rather than erroring, since a retried CLI
// invocation should not be destructive.
func (s *Service) InitHive(r *http.Request, args *InitHiveArgs, reply *InitHiveReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.HiveID), LevelAdmin); err != nil {
		return err
	}
	if s.hiveID == "" {
		s.hiveID = args.HiveID
	}
	reply.HiveID = s.hiveID
	return nil
}

// InviteArgs requests an admin-signed invite ticket for candidate.
type InviteArgs struct {
	Auth
	Candidate types.Pubkey  `json:"candidate"`
	ValidFor  time.Duration `json:"valid_for"`
}

// InviteReply carries the signed ticket, to be handed out of band to the
// candidate for presentation during ATTEST.
type InviteReply struct {
	Ticket wire.InviteTicket `json:"ticket"`
}

// Invite is spec §6.5's "issue invite" command. It signs and returns a
// ticket whether or not ticketed admission is enabled; the handshake
// checks tickets only when TicketedAdmission is set, and otherwise every
// ATTEST admits as Neophyte.
func (s *Service) Invite(r *http.Request, args *InviteArgs, reply *InviteReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.Candidate), LevelAdmin); err != nil {
		return err
	}
	ticket := wire.InviteTicket{
		Pubkey:    args.Candidate,
		ExpiresAt: time.Now().Add(args.ValidFor),
	}
	sig, err := s.signer(r.Context(), ticket.SigningPayload())
	if err != nil {
		return err
	}
	ticket.Signature = sig
	reply.Ticket = ticket
	return nil
}

// StatusArgs requests this node's own operational status.
type StatusArgs struct {
	Auth
}

// StatusReply reports identity, agent version, governance mode, breaker
// states, and active member count — the "show status" introspection
// command. It carries no gossip-staleness field.
type StatusReply struct {
	HiveID          string `json:"hive_id"`
	Self            types.Pubkey `json:"self"`
	AgentVersion    string `json:"agent_version"`
	GovernanceMode  string `json:"governance_mode"`
	ExecutionBreaker string `json:"execution_breaker"`
	ChannelBreaker   string `json:"channel_breaker"`
	ActiveMembers    int    `json:"active_members"`
}

// Status is spec §6.5's "show status" command, open to any tier.
func (s *Service) Status(r *http.Request, args *StatusArgs, reply *StatusReply) error {
	if err := s.authorize(r.Context(), args.Auth, nil, LevelAny); err != nil {
		return err
	}
	active, err := s.members.ActiveMembers()
	if err != nil {
		return err
	}
	reply.HiveID = s.hiveID
	reply.Self = s.self
	reply.AgentVersion = version.Current().String()
	reply.GovernanceMode = string(s.gov.ModeNow())
	reply.ExecutionBreaker = s.bridge.ExecutionState().String()
	reply.ChannelBreaker = s.bridge.ChannelState().String()
	reply.ActiveMembers = len(active)
	return nil
}

// MembersArgs requests the current membership roster.
type MembersArgs struct {
	Auth
}

// MembersReply lists every non-banned member.
type MembersReply struct {
	Members []types.Member `json:"members"`
}

// Members is spec §6.5's "show members" command, open to any tier.
func (s *Service) Members(r *http.Request, args *MembersArgs, reply *MembersReply) error {
	if err := s.authorize(r.Context(), args.Auth, nil, LevelAny); err != nil {
		return err
	}
	active, err := s.members.ActiveMembers()
	if err != nil {
		return err
	}
	reply.Members = active
	return nil
}

// ActionIDArgs names a pending governance action by id.
type ActionIDArgs struct {
	Auth
	ID string `json:"id"`
}

// ActionIDReply is an empty acknowledgement.
type ActionIDReply struct{}

// Approve is spec §6.5's "approve pending action" admin command.
func (s *Service) Approve(r *http.Request, args *ActionIDArgs, reply *ActionIDReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.ID), LevelAdmin); err != nil {
		return err
	}
	return s.gov.Approve(r.Context(), args.ID)
}

// Reject is spec §6.5's "reject pending action" admin command.
func (s *Service) Reject(r *http.Request, args *ActionIDArgs, reply *ActionIDReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.ID), LevelAdmin); err != nil {
		return err
	}
	return s.gov.Reject(args.ID)
}

// ModeArgs requests a governance mode change.
type ModeArgs struct {
	Auth
	Mode string `json:"mode"`
}

// ModeReply confirms the mode now in effect.
type ModeReply struct {
	Mode string `json:"mode"`
}

// Mode is spec §6.5's "change governance mode" admin command.
func (s *Service) Mode(r *http.Request, args *ModeArgs, reply *ModeReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.Mode), LevelAdmin); err != nil {
		return err
	}
	mode := governance.Mode(args.Mode)
	switch mode {
	case governance.ModeAdvisor, governance.ModeAutonomous, governance.ModeOracle:
	default:
		return errors.Wrapf(errkinds.Malformed, "management: unknown governance mode %q", args.Mode)
	}
	s.gov.SetMode(mode)
	reply.Mode = string(mode)
	return nil
}

// RequestPromotionArgs is empty: the caller requests promotion for
// itself, since a Neophyte cannot vouch for another pubkey.
type RequestPromotionArgs struct {
	Auth
}

// RequestPromotionReply carries the request_id VOUCHes must correlate
// against.
type RequestPromotionReply struct {
	RequestID string `json:"request_id"`
}

// RequestPromotion is spec §6.5's "request promotion" command, open to
// any tier (a Neophyte is exactly who requests promotion).
func (s *Service) RequestPromotion(r *http.Request, args *RequestPromotionArgs, reply *RequestPromotionReply) error {
	if err := s.authorize(r.Context(), args.Auth, nil, LevelAny); err != nil {
		return err
	}
	req := types.PromotionRequest{
		RequestID: uuid.NewString(),
		Subject:   s.self,
		CreatedAt: time.Now(),
	}
	batch := s.db.NewBatch()
	if err := batch.PutPromotionRequest(req); err != nil {
		return err
	}
	if err := s.db.Commit(batch); err != nil {
		return err
	}
	if err := s.fanout.BroadcastPromotionRequest(r.Context(), req); err != nil {
		return err
	}
	reply.RequestID = req.RequestID
	return nil
}

// VouchArgs casts this node's vouch for subject/requestID.
type VouchArgs struct {
	Auth
	Subject   types.Pubkey `json:"subject"`
	RequestID string       `json:"request_id"`
}

// VouchReply is an empty acknowledgement.
type VouchReply struct{}

// Vouch is spec §6.5's "vouch" command, restricted to Members: the
// caller re-evaluates subject against the three promotion criteria
// itself before casting a vouch it is willing to sign for.
func (s *Service) Vouch(r *http.Request, args *VouchArgs, reply *VouchReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.Subject+types.Pubkey(args.RequestID)), LevelMember); err != nil {
		return err
	}
	v := types.PromotionVouch{
		Subject:   args.Subject,
		Voucher:   s.self,
		RequestID: args.RequestID,
		Timestamp: time.Now(),
	}
	sig, err := s.signer(r.Context(), v.SigningPayload(s.hiveID))
	if err != nil {
		return err
	}
	v.Signature = sig

	batch := s.db.NewBatch()
	if err := batch.PutVouch(v); err != nil {
		return err
	}
	if err := s.db.Commit(batch); err != nil {
		return err
	}
	if _, err := s.members.TryCommitPromotion(s.promotion, v.Subject, v.RequestID); err != nil {
		s.log.Warn("management: local promotion quorum check failed", "err", err)
	}
	return s.fanout.BroadcastVouch(r.Context(), v)
}

// ProposeBanArgs requests a ban_peer Intent for peer.
type ProposeBanArgs struct {
	Auth
	Peer types.Pubkey `json:"peer"`
}

// ProposeBanReply is an empty acknowledgement.
type ProposeBanReply struct{}

// ProposeBan is spec §6.5's "propose ban" command, restricted to
// Members: it announces a ban_peer Intent through the same deterministic
// conflict-resolution path a leech-detection ban does, rather than
// banning directly.
func (s *Service) ProposeBan(r *http.Request, args *ProposeBanArgs, reply *ProposeBanReply) error {
	if err := s.authorize(r.Context(), args.Auth, []byte(args.Peer), LevelMember); err != nil {
		return err
	}
	_, err := s.intents.Announce(r.Context(), types.IntentBanPeer, string(args.Peer), s.banHold, s.banHorizon)
	return err
}

// TopologyArgs requests the planner's current target view.
type TopologyArgs struct {
	Auth
}

// TopologyReply lists every external target the planner tracks.
type TopologyReply struct {
	Targets []planner.TargetView `json:"targets"`
}

// Topology is spec §6.5's "show topology" command, open to any tier.
func (s *Service) Topology(r *http.Request, args *TopologyArgs, reply *TopologyReply) error {
	if err := s.authorize(r.Context(), args.Auth, nil, LevelAny); err != nil {
		return err
	}
	targets, err := s.planner.Candidates(r.Context())
	if err != nil {
		return err
	}
	reply.Targets = targets
	return nil
}

// PlannerLogArgs requests the bounded planner decision log.
type PlannerLogArgs struct {
	Auth
}

// PlannerLogReply carries the stored PlannerLog rows, oldest first.
type PlannerLogReply struct {
	Entries []types.PlannerLogEntry `json:"entries"`
}

// PlannerLog is spec §6.5's "show planner log" command, open to any
// tier.
func (s *Service) PlannerLog(r *http.Request, args *PlannerLogArgs, reply *PlannerLogReply) error {
	if err := s.authorize(r.Context(), args.Auth, nil, LevelAny); err != nil {
		return err
	}
	entries, err := s.db.ListPlannerLog()
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}
