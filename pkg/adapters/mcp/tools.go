package mcp

import (
	"context"

	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

type tenantArgs struct {
	Tenant string `json:"tenant"`
}

type groupArgs struct {
	Tenant  string `json:"tenant"`
	GroupID string `json:"group_id"`
}

type restrictionArgs struct {
	Tenant     string `json:"tenant"`
	GroupID    string `json:"group_id"`
	Restricted bool   `json:"restricted"`
}

type textArgs struct {
	Tenant        string   `json:"tenant"`
	GroupID       string   `json:"group_id"`
	Text          string   `json:"text"`
	MentionAll    bool     `json:"mention_all"`
	MentionPhones []string `json:"mention_phones"`
}

type welcomeArgs struct {
	Tenant       string   `json:"tenant"`
	GroupID      string   `json:"group_id"`
	Text         string   `json:"text"`
	JoinerPhones []string `json:"joiner_phones"`
	ExtraPhones  []string `json:"extra_phones"`
}

type pollArgs struct {
	Tenant        string   `json:"tenant"`
	GroupID       string   `json:"group_id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	AllowMultiple bool     `json:"allow_multiple"`
	MentionAll    bool     `json:"mention_all"`
}

type channelTextArgs struct {
	Tenant    string `json:"tenant"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// QRResponse is the pending login code of a tenant.
type QRResponse struct {
	Tenant  domain.TenantID `json:"tenant" jsonschema_description:"Tenant the code belongs to"`
	QR      string          `json:"qr,omitempty" jsonschema_description:"Code to scan with the phone"`
	Pending bool            `json:"pending" jsonschema_description:"Whether a code is waiting to be scanned"`
}

// GroupsResponse wraps list results so they are objects, as MCP structured content requires.
type GroupsResponse struct {
	Groups []domain.Group `json:"groups"`
}

// MembersResponse lists the participants of a group.
type MembersResponse struct {
	Members []domain.Member `json:"members"`
}

// ChannelsResponse lists the channels of a tenant.
type ChannelsResponse struct {
	Channels []domain.Channel `json:"channels"`
}

// SessionsResponse lists registered sessions.
type SessionsResponse struct {
	Sessions []domain.SessionStatus `json:"sessions"`
}

// DestroyResponse acknowledges destroy_session.
type DestroyResponse struct {
	Tenant    domain.TenantID `json:"tenant"`
	Destroyed bool            `json:"destroyed"`
}

var tenantParam = mcp.WithString("tenant", mcp.Required(), mcp.Description("Tenant identifier"))

func (s *Server) registerTools() {
	// TOOL: create_session
	s.addTool(mcp.NewTool("create_session",
		mcp.WithDescription("Start a session for a tenant. Scan the returned code with get_qr when the state is qr_ready."),
		tenantParam,
		mcp.WithOutputSchema[domain.CreateResult](),
	), mcp.NewStructuredToolHandler(s.handleCreateSession))

	// TOOL: get_session_state
	s.addTool(mcp.NewTool("get_session_state",
		mcp.WithDescription("Get the lifecycle state of a tenant's session."),
		tenantParam,
		mcp.WithOutputSchema[domain.SessionStatus](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	// TOOL: get_qr
	s.addTool(mcp.NewTool("get_qr",
		mcp.WithDescription("Get the pending login code of a tenant."),
		tenantParam,
		mcp.WithOutputSchema[QRResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetQR))

	// TOOL: list_sessions
	s.addTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List every registered session."),
		mcp.WithOutputSchema[SessionsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListSessions))

	// TOOL: destroy_session
	s.addTool(mcp.NewTool("destroy_session",
		mcp.WithDescription("Stop a tenant's session and release its slot. Credentials are kept."),
		tenantParam,
		mcp.WithOutputSchema[DestroyResponse](),
	), mcp.NewStructuredToolHandler(s.handleDestroySession))

	// TOOL: list_groups
	s.addTool(mcp.NewTool("list_groups",
		mcp.WithDescription("List the groups of a tenant. Empty when the session is not ready."),
		tenantParam,
		mcp.WithOutputSchema[GroupsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListGroups))

	// TOOL: list_group_members
	s.addTool(mcp.NewTool("list_group_members",
		mcp.WithDescription("List the participants of a group."),
		tenantParam,
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier")),
		mcp.WithOutputSchema[MembersResponse](),
	), mcp.NewStructuredToolHandler(s.handleListMembers))

	// TOOL: set_group_restriction
	s.addTool(mcp.NewTool("set_group_restriction",
		mcp.WithDescription("Allow only admins to post in a group, or lift the restriction."),
		tenantParam,
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier")),
		mcp.WithBoolean("restricted", mcp.Required(), mcp.Description("true to restrict posting to admins")),
		mcp.WithOutputSchema[domain.RestrictionResult](),
	), mcp.NewStructuredToolHandler(s.handleSetRestriction))

	// TOOL: send_text
	s.addTool(mcp.NewTool("send_text",
		mcp.WithDescription("Send a text message to a group."),
		tenantParam,
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message body")),
		mcp.WithBoolean("mention_all", mcp.Description("Mention every participant")),
		mcp.WithArray("mention_phones", mcp.Description("Phone numbers to mention"), mcp.WithStringItems()),
		mcp.WithOutputSchema[domain.SendReceipt](),
	), mcp.NewStructuredToolHandler(s.handleSendText))

	// TOOL: send_welcome
	s.addTool(mcp.NewTool("send_welcome",
		mcp.WithDescription("Greet new members: joiner mentions, the text, then extra mentions."),
		tenantParam,
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier")),
		mcp.WithString("text", mcp.Description("Welcome text")),
		mcp.WithArray("joiner_phones", mcp.Description("Phone numbers of the new members"), mcp.WithStringItems()),
		mcp.WithArray("extra_phones", mcp.Description("Additional phone numbers to mention"), mcp.WithStringItems()),
		mcp.WithOutputSchema[domain.WelcomeReceipt](),
	), mcp.NewStructuredToolHandler(s.handleSendWelcome))

	// TOOL: send_poll
	s.addTool(mcp.NewTool("send_poll",
		mcp.WithDescription("Send a poll with 2 to 12 options to a group."),
		tenantParam,
		mcp.WithString("group_id", mcp.Required(), mcp.Description("Group identifier")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Poll question")),
		mcp.WithArray("options", mcp.Required(), mcp.Description("Poll options"), mcp.WithStringItems()),
		mcp.WithBoolean("allow_multiple", mcp.Description("Allow more than one answer")),
		mcp.WithBoolean("mention_all", mcp.Description("Mention every participant")),
		mcp.WithOutputSchema[domain.PollReceipt](),
	), mcp.NewStructuredToolHandler(s.handleSendPoll))

	// TOOL: list_channels
	s.addTool(mcp.NewTool("list_channels",
		mcp.WithDescription("List the broadcast channels of a tenant."),
		tenantParam,
		mcp.WithOutputSchema[ChannelsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListChannels))

	// TOOL: send_channel_text
	s.addTool(mcp.NewTool("send_channel_text",
		mcp.WithDescription("Post a text message to a channel the tenant owns."),
		tenantParam,
		mcp.WithString("channel_id", mcp.Required(), mcp.Description("Channel identifier")),
		mcp.WithString("text", mcp.Required(), mcp.Description("Message body")),
		mcp.WithOutputSchema[domain.SendReceipt](),
	), mcp.NewStructuredToolHandler(s.handleSendChannelText))
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest, args tenantArgs) (domain.CreateResult, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.CreateResult{}, err
	}
	res, err := s.sessions.CreateSession(ctx, tenant)
	if err != nil {
		s.logger.Warn("MCP create_session failed", "tenant", tenant, "outcome", res.Outcome, "err", err)
		return res, toolError("create_session", err)
	}
	return res, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args tenantArgs) (domain.SessionStatus, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.SessionStatus{}, err
	}
	return s.sessions.State(tenant), nil
}

func (s *Server) handleGetQR(ctx context.Context, request mcp.CallToolRequest, args tenantArgs) (QRResponse, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return QRResponse{}, err
	}
	qr, ok := s.sessions.PendingCredential(tenant)
	return QRResponse{Tenant: tenant, QR: qr, Pending: ok}, nil
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (SessionsResponse, error) {
	return SessionsResponse{Sessions: s.sessions.Sessions()}, nil
}

func (s *Server) handleDestroySession(ctx context.Context, request mcp.CallToolRequest, args tenantArgs) (DestroyResponse, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return DestroyResponse{}, err
	}
	if err := s.sessions.DestroySession(ctx, tenant); err != nil {
		return DestroyResponse{}, toolError("destroy_session", err)
	}
	return DestroyResponse{Tenant: tenant, Destroyed: true}, nil
}

func (s *Server) handleListGroups(ctx context.Context, request mcp.CallToolRequest, args tenantArgs) (GroupsResponse, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return GroupsResponse{}, err
	}
	groups, err := s.sessions.ListGroups(ctx, tenant)
	if err != nil {
		return GroupsResponse{}, toolError("list_groups", err)
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	return GroupsResponse{Groups: groups}, nil
}

func (s *Server) handleListMembers(ctx context.Context, request mcp.CallToolRequest, args groupArgs) (MembersResponse, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return MembersResponse{}, err
	}
	members, err := s.sessions.ListGroupMembers(ctx, tenant, args.GroupID)
	if err != nil {
		return MembersResponse{}, toolError("list_group_members", err)
	}
	if members == nil {
		members = []domain.Member{}
	}
	return MembersResponse{Members: members}, nil
}

func (s *Server) handleSetRestriction(ctx context.Context, request mcp.CallToolRequest, args restrictionArgs) (domain.RestrictionResult, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.RestrictionResult{}, err
	}
	res, err := s.sessions.SetGroupRestriction(ctx, tenant, args.GroupID, args.Restricted)
	if err != nil {
		return domain.RestrictionResult{}, toolError("set_group_restriction", err)
	}
	return res, nil
}

func (s *Server) handleSendText(ctx context.Context, request mcp.CallToolRequest, args textArgs) (domain.SendReceipt, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.SendReceipt{}, err
	}
	opts := domain.MentionOptions{MentionAll: args.MentionAll, MentionPhones: args.MentionPhones}
	receipt, err := s.sessions.SendText(ctx, tenant, args.GroupID, args.Text, opts)
	if err != nil {
		return domain.SendReceipt{}, toolError("send_text", err)
	}
	return receipt, nil
}

func (s *Server) handleSendWelcome(ctx context.Context, request mcp.CallToolRequest, args welcomeArgs) (domain.WelcomeReceipt, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.WelcomeReceipt{}, err
	}
	receipt, err := s.sessions.SendWelcome(ctx, tenant, args.GroupID, args.Text, args.JoinerPhones, args.ExtraPhones)
	if err != nil {
		return domain.WelcomeReceipt{}, toolError("send_welcome", err)
	}
	return receipt, nil
}

func (s *Server) handleSendPoll(ctx context.Context, request mcp.CallToolRequest, args pollArgs) (domain.PollReceipt, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.PollReceipt{}, err
	}
	poll := domain.Poll{Question: args.Question, Options: args.Options, AllowMultiple: args.AllowMultiple}
	receipt, err := s.sessions.SendPoll(ctx, tenant, args.GroupID, poll, domain.MentionOptions{MentionAll: args.MentionAll})
	if err != nil {
		return domain.PollReceipt{}, toolError("send_poll", err)
	}
	return receipt, nil
}

func (s *Server) handleListChannels(ctx context.Context, request mcp.CallToolRequest, args tenantArgs) (ChannelsResponse, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return ChannelsResponse{}, err
	}
	channels, err := s.sessions.ListChannels(ctx, tenant)
	if err != nil {
		return ChannelsResponse{}, toolError("list_channels", err)
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return ChannelsResponse{Channels: channels}, nil
}

func (s *Server) handleSendChannelText(ctx context.Context, request mcp.CallToolRequest, args channelTextArgs) (domain.SendReceipt, error) {
	tenant, err := tenantArg(args.Tenant)
	if err != nil {
		return domain.SendReceipt{}, err
	}
	receipt, err := s.sessions.SendChannelText(ctx, tenant, args.ChannelID, args.Text)
	if err != nil {
		return domain.SendReceipt{}, toolError("send_channel_text", err)
	}
	return receipt, nil
}
