// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/luxfi/hive/management"
	"github.com/luxfi/hive/types"
	"github.com/spf13/cobra"
)

// clientFlags holds the flags every RPC-calling subcommand shares: where
// the running agent's management listener lives, and the caller's
// identity. Signing itself happens inside the host node's HSM (out of
// scope here, per host.Node's own doc comment); an operator either runs
// the CLI on the same host as the agent it is commanding — in which case
// --caller is set to the agent's own pubkey and authorize's same-process
// shortcut applies — or supplies a signature obtained out-of-band from
// whatever tool holds their key.
type clientFlags struct {
	endpoint  string
	caller    string
	signature string
}

func (f *clientFlags) auth() (management.Auth, error) {
	var sig []byte
	if f.signature != "" {
		decoded, err := hex.DecodeString(f.signature)
		if err != nil {
			return management.Auth{}, fmt.Errorf("hive-agent: --signature must be hex: %w", err)
		}
		sig = decoded
	}
	return management.Auth{Caller: types.Pubkey(f.caller), Signature: sig}, nil
}

func (f *clientFlags) client() *rpcClient {
	return newRPCClient(f.endpoint)
}

func bindClientFlags(cmd *cobra.Command, f *clientFlags) {
	cmd.PersistentFlags().StringVar(&f.endpoint, "endpoint", "http://127.0.0.1:8745/rpc", "management RPC endpoint of the running agent")
	cmd.PersistentFlags().StringVar(&f.caller, "caller", "", "this call's caller pubkey (hex)")
	cmd.PersistentFlags().StringVar(&f.signature, "signature", "", "hex signature over the call's payload, from the caller's own key material")
}

func managementCommands(f *clientFlags) []*cobra.Command {
	return []*cobra.Command{
		initHiveCmd(f),
		inviteCmd(f),
		statusCmd(f),
		membersCmd(f),
		approveCmd(f),
		rejectCmd(f),
		modeCmd(f),
		requestPromotionCmd(f),
		vouchCmd(f),
		proposeBanCmd(f),
		topologyCmd(f),
		plannerLogCmd(f),
	}
}

func initHiveCmd(f *clientFlags) *cobra.Command {
	var hiveID string
	cmd := &cobra.Command{
		Use:   "init-hive",
		Short: "initiate a new Hive with this node as admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.InitHiveReply
			if err := f.client().call(cmd.Context(), "hive.InitHive", &management.InitHiveArgs{Auth: auth, HiveID: hiveID}, &reply); err != nil {
				return err
			}
			fmt.Printf("hive_id: %s\n", reply.HiveID)
			return nil
		},
	}
	cmd.Flags().StringVar(&hiveID, "hive-id", "", "identifier for the new Hive")
	return cmd
}

func inviteCmd(f *clientFlags) *cobra.Command {
	var candidate string
	var validFor time.Duration
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "issue a signed invite ticket for a candidate pubkey",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.InviteReply
			argsReq := &management.InviteArgs{Auth: auth, Candidate: types.Pubkey(candidate), ValidFor: validFor}
			if err := f.client().call(cmd.Context(), "hive.Invite", argsReq, &reply); err != nil {
				return err
			}
			fmt.Printf("ticket: %+v\n", reply.Ticket)
			return nil
		},
	}
	cmd.Flags().StringVar(&candidate, "candidate", "", "candidate pubkey (hex)")
	cmd.Flags().DurationVar(&validFor, "valid-for", 24*time.Hour, "how long the ticket remains valid")
	return cmd
}

func statusCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "show this node's operational status",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.StatusReply
			if err := f.client().call(cmd.Context(), "hive.Status", &management.StatusArgs{Auth: auth}, &reply); err != nil {
				return err
			}
			fmt.Printf("hive_id: %s\nself: %s\nagent_version: %s\ngovernance_mode: %s\nexecution_breaker: %s\nchannel_breaker: %s\nactive_members: %d\n",
				reply.HiveID, reply.Self, reply.AgentVersion, reply.GovernanceMode, reply.ExecutionBreaker, reply.ChannelBreaker, reply.ActiveMembers)
			return nil
		},
	}
}

func membersCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "members",
		Short: "list the current membership roster",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.MembersReply
			if err := f.client().call(cmd.Context(), "hive.Members", &management.MembersArgs{Auth: auth}, &reply); err != nil {
				return err
			}
			for _, m := range reply.Members {
				fmt.Printf("%s\ttier=%s\n", m.Pubkey, m.Tier)
			}
			return nil
		},
	}
}

func approveCmd(f *clientFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "approve",
		Short: "approve a pending governance action",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.ActionIDReply
			return f.client().call(cmd.Context(), "hive.Approve", &management.ActionIDArgs{Auth: auth, ID: id}, &reply)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pending action id")
	return cmd
}

func rejectCmd(f *clientFlags) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "reject",
		Short: "reject a pending governance action",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.ActionIDReply
			return f.client().call(cmd.Context(), "hive.Reject", &management.ActionIDArgs{Auth: auth, ID: id}, &reply)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pending action id")
	return cmd
}

func modeCmd(f *clientFlags) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "change the governance decision mode (advisor|autonomous|oracle)",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.ModeReply
			if err := f.client().call(cmd.Context(), "hive.Mode", &management.ModeArgs{Auth: auth, Mode: mode}, &reply); err != nil {
				return err
			}
			fmt.Printf("mode: %s\n", reply.Mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "value", "", "advisor, autonomous, or oracle")
	return cmd
}

func requestPromotionCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "request-promotion",
		Short: "request promotion from Neophyte to Member",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.RequestPromotionReply
			if err := f.client().call(cmd.Context(), "hive.RequestPromotion", &management.RequestPromotionArgs{Auth: auth}, &reply); err != nil {
				return err
			}
			fmt.Printf("request_id: %s\n", reply.RequestID)
			return nil
		},
	}
}

func vouchCmd(f *clientFlags) *cobra.Command {
	var subject, requestID string
	cmd := &cobra.Command{
		Use:   "vouch",
		Short: "cast this node's vouch for a promotion request",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.VouchReply
			return f.client().call(cmd.Context(), "hive.Vouch", &management.VouchArgs{Auth: auth, Subject: types.Pubkey(subject), RequestID: requestID}, &reply)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "pubkey being vouched for")
	cmd.Flags().StringVar(&requestID, "request-id", "", "the subject's promotion request id")
	return cmd
}

func proposeBanCmd(f *clientFlags) *cobra.Command {
	var peer string
	cmd := &cobra.Command{
		Use:   "propose-ban",
		Short: "propose a ban_peer Intent against a peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.ProposeBanReply
			return f.client().call(cmd.Context(), "hive.ProposeBan", &management.ProposeBanArgs{Auth: auth, Peer: types.Pubkey(peer)}, &reply)
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "peer pubkey to ban")
	return cmd
}

func topologyCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "topology",
		Short: "show the planner's current target view",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.TopologyReply
			if err := f.client().call(cmd.Context(), "hive.Topology", &management.TopologyArgs{Auth: auth}, &reply); err != nil {
				return err
			}
			for _, t := range reply.Targets {
				fmt.Printf("%+v\n", t)
			}
			return nil
		},
	}
}

func plannerLogCmd(f *clientFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "planner-log",
		Short: "show the bounded planner decision log",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := f.auth()
			if err != nil {
				return err
			}
			var reply management.PlannerLogReply
			if err := f.client().call(cmd.Context(), "hive.PlannerLog", &management.PlannerLogArgs{Auth: auth}, &reply); err != nil {
				return err
			}
			for _, e := range reply.Entries {
				fmt.Printf("%+v\n", e)
			}
			return nil
		},
	}
}
