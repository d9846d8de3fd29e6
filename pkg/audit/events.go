package audit

// EventType is the discriminator carried in every audit event's
// "event_type" field.
type EventType string

const (
	EventModelCallPrepared       EventType = "model_call_prepared"
	EventModelRequestRedacted    EventType = "model_request_redacted"
	EventModelCallDispatched     EventType = "model_call_dispatched"
	EventModelCallCompleted      EventType = "model_call_completed"
	EventEpisodeAppended         EventType = "episode_appended"
	EventEpisodeMirrorAttempted  EventType = "episode_mirror_attempted"
	EventEpisodeMirrored         EventType = "episode_mirrored"
	EventEpisodeMirrorFailed     EventType = "episode_mirror_failed"
	EventEpisodeQueryPerformed   EventType = "episode_query_performed"
	EventEpisodeQueryFailed      EventType = "episode_query_failed"
)

// AgentRole is the enumerated role of the agent issuing a model call.
type AgentRole string

const (
	RolePlanner    AgentRole = "planner"
	RoleExecutor   AgentRole = "executor"
	RoleCritic     AgentRole = "critic"
	RoleSummarizer AgentRole = "summarizer"
)

// RiskClass classifies the kind of side effect a policy decision covers.
type RiskClass string

const (
	RiskRead    RiskClass = "read"
	RiskWrite   RiskClass = "write"
	RiskExec    RiskClass = "exec"
	RiskNetwork RiskClass = "network"
)

// CallStatus is the provider dispatch outcome taxonomy.
type CallStatus string

const (
	StatusOK          CallStatus = "ok"
	StatusError       CallStatus = "error"
	StatusTimeout     CallStatus = "timeout"
	StatusRateLimited CallStatus = "rate_limited"
)

// ArtifactRef points at a stored artifact by its digest.
type ArtifactRef struct {
	Type string `json:"type"`
	Hash string `json:"hash"`
}

// NewArtifactRef builds an ArtifactRef with type "artifact_ref".
func NewArtifactRef(hash string) ArtifactRef {
	return ArtifactRef{Type: "artifact_ref", Hash: hash}
}

// Actor identifies which subsystem/backend emitted an event.
type Actor struct {
	Subsystem string `json:"subsystem"`
	Backend   string `json:"backend,omitempty"`
}

// IntegrityPre records the hash/size of a request before redaction.
type IntegrityPre struct {
	RequestPreHash      string `json:"request_pre_hash"`
	RequestPreSizeBytes int    `json:"request_pre_size_bytes"`
}

// IntegrityRedacted records pre/post hashes and post size after redaction.
type IntegrityRedacted struct {
	RequestPreHash       string `json:"request_pre_hash"`
	RequestPostHash      string `json:"request_post_hash"`
	RequestPostSizeBytes int    `json:"request_post_size_bytes"`
}

// PolicyMeta carries the opaque upstream policy decision this call is
// executing under. The boundary consumes these values; it never derives
// them.
type PolicyMeta struct {
	DecisionID        string    `json:"decision_id"`
	RiskClass         RiskClass `json:"risk_class"`
	RequiresApproval  bool      `json:"requires_approval"`
}

// ModelCallMeta identifies a single model call.
type ModelCallMeta struct {
	CallID   string    `json:"call_id"`
	Role     AgentRole `json:"role"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`
}

// ModelCallPrepared records the internal request's hash and size. It is
// appended after redaction, once every request artifact has been written,
// immediately before ModelRequestRedacted.
type ModelCallPrepared struct {
	SchemaVersion int           `json:"schema_version"`
	RunID         string        `json:"run_id"`
	TickID        int           `json:"tick_id"`
	TS            float64       `json:"ts"`
	Actor         Actor         `json:"actor"`
	ModelCall     ModelCallMeta `json:"model_call"`
	Integrity     IntegrityPre  `json:"integrity"`
	Policy        PolicyMeta    `json:"policy"`
}

func (ModelCallPrepared) eventType() EventType { return EventModelCallPrepared }

// RedactionMeta summarizes the redaction pass applied to a request.
type RedactionMeta struct {
	Profile            string `json:"profile"`
	TransformCount     int    `json:"transform_count"`
	TransformLogHash   string `json:"transform_log_hash"`
	SummaryBudgetChars int    `json:"summary_budget_chars"`
}

// RedactionArtifacts points at the artifacts the redaction pass produced.
type RedactionArtifacts struct {
	PreRequestArtifact   ArtifactRef `json:"pre_request_artifact"`
	PostRequestArtifact  ArtifactRef `json:"post_request_artifact"`
	TransformLogArtifact ArtifactRef `json:"transform_log_artifact"`
}

// ModelRequestRedacted is emitted once the sanitized request, transform
// log, and call manifest have all been written.
type ModelRequestRedacted struct {
	SchemaVersion int                `json:"schema_version"`
	RunID         string             `json:"run_id"`
	TickID        int                `json:"tick_id"`
	TS            float64            `json:"ts"`
	ModelCall     ModelCallMeta      `json:"model_call"`
	Redaction     RedactionMeta      `json:"redaction"`
	Integrity     IntegrityRedacted  `json:"integrity"`
	Artifacts     RedactionArtifacts `json:"artifacts"`
}

func (ModelRequestRedacted) eventType() EventType { return EventModelRequestRedacted }

// ModelCallDispatched is emitted immediately before a sanitized request is
// sent to the provider.
type ModelCallDispatched struct {
	SchemaVersion       int           `json:"schema_version"`
	RunID               string        `json:"run_id"`
	TickID              int           `json:"tick_id"`
	TS                  float64       `json:"ts"`
	ModelCall           ModelCallMeta `json:"model_call"`
	Provider            string        `json:"provider"`
	Model               string        `json:"model"`
	EndpointFingerprint string        `json:"endpoint_fingerprint"`
	RequestPostHash     string        `json:"request_post_hash"`
}

func (ModelCallDispatched) eventType() EventType { return EventModelCallDispatched }

// ModelCallResult carries the outcome of a provider dispatch.
type ModelCallResult struct {
	Status               CallStatus `json:"status"`
	LatencyMS            int64      `json:"latency_ms"`
	ProviderRequestIDHash string     `json:"provider_request_id_hash,omitempty"`
	ResponseHash         string     `json:"response_hash,omitempty"`
	ResponseSizeBytes    int        `json:"response_size_bytes,omitempty"`
}

// CompletionArtifacts points at the raw/normalized response artifacts.
type CompletionArtifacts struct {
	ResponseArtifact         ArtifactRef `json:"response_artifact"`
	NormalizedReplyArtifact  ArtifactRef `json:"normalized_reply_artifact"`
}

// ModelCallCompleted is emitted after a provider dispatch returns (success
// or failure).
type ModelCallCompleted struct {
	SchemaVersion int                 `json:"schema_version"`
	RunID         string              `json:"run_id"`
	TickID        int                 `json:"tick_id"`
	TS            float64             `json:"ts"`
	ModelCall     ModelCallMeta       `json:"model_call"`
	Result        ModelCallResult     `json:"result"`
	Artifacts     CompletionArtifacts `json:"artifacts"`
}

func (ModelCallCompleted) eventType() EventType { return EventModelCallCompleted }

// EpisodeAppended is emitted after an episode has been durably appended to
// the episode log and index.
type EpisodeAppended struct {
	SchemaVersion   int      `json:"schema_version"`
	RunID           string   `json:"run_id"`
	TickID          int      `json:"tick_id"`
	TS              float64  `json:"ts"`
	EpisodeID       string   `json:"episode_id"`
	ThreadID        string   `json:"thread_id"`
	Tags            []string `json:"tags"`
	Title           string   `json:"title"`
	EpisodeHash     string   `json:"episode_hash"`
	EpisodeArtifact ArtifactRef `json:"episode_artifact"`
}

func (EpisodeAppended) eventType() EventType { return EventEpisodeAppended }

// EpisodeMirrorAttempted is emitted before a best-effort remote mirror
// call is made.
type EpisodeMirrorAttempted struct {
	SchemaVersion int     `json:"schema_version"`
	RunID         string  `json:"run_id"`
	TickID        int     `json:"tick_id"`
	TS            float64 `json:"ts"`
	EpisodeID     string  `json:"episode_id"`
	Target        string  `json:"target"`
}

func (EpisodeMirrorAttempted) eventType() EventType { return EventEpisodeMirrorAttempted }

// EpisodeMirrored is emitted when a remote mirror call succeeds.
type EpisodeMirrored struct {
	SchemaVersion int     `json:"schema_version"`
	RunID         string  `json:"run_id"`
	TickID        int     `json:"tick_id"`
	TS            float64 `json:"ts"`
	EpisodeID     string  `json:"episode_id"`
	Target        string  `json:"target"`
	RemoteID      string  `json:"remote_id"`
}

func (EpisodeMirrored) eventType() EventType { return EventEpisodeMirrored }

// EpisodeMirrorFailed is emitted when a remote mirror call fails. Mirror
// failure never fails the episode append itself.
type EpisodeMirrorFailed struct {
	SchemaVersion int     `json:"schema_version"`
	RunID         string  `json:"run_id"`
	TickID        int     `json:"tick_id"`
	TS            float64 `json:"ts"`
	EpisodeID     string  `json:"episode_id"`
	Target        string  `json:"target"`
	Error         string  `json:"error"`
}

func (EpisodeMirrorFailed) eventType() EventType { return EventEpisodeMirrorFailed }

// EpisodeQueryPerformed is emitted after a remote memory query succeeds.
type EpisodeQueryPerformed struct {
	SchemaVersion   int         `json:"schema_version"`
	RunID           string      `json:"run_id"`
	TickID          int         `json:"tick_id"`
	TS              float64     `json:"ts"`
	Target          string      `json:"target"`
	QueryHash       string      `json:"query_hash"`
	QueryLen        int         `json:"query_len"`
	K               int         `json:"k"`
	UserID          string      `json:"user_id,omitempty"`
	Alias           string      `json:"alias,omitempty"`
	ResultCount     int         `json:"result_count"`
	ResponseHash    string      `json:"response_hash"`
	ResponseArtifact ArtifactRef `json:"response_artifact"`
}

func (EpisodeQueryPerformed) eventType() EventType { return EventEpisodeQueryPerformed }

// EpisodeQueryFailed is emitted when a remote memory query fails.
type EpisodeQueryFailed struct {
	SchemaVersion int     `json:"schema_version"`
	RunID         string  `json:"run_id"`
	TickID        int     `json:"tick_id"`
	TS            float64 `json:"ts"`
	Target        string  `json:"target"`
	QueryHash     string  `json:"query_hash"`
	QueryLen      int     `json:"query_len"`
	K             int     `json:"k"`
	UserID        string  `json:"user_id,omitempty"`
	Alias         string  `json:"alias,omitempty"`
	Error         string  `json:"error"`
}

func (EpisodeQueryFailed) eventType() EventType { return EventEpisodeQueryFailed }

// Event is implemented by every audit event payload kind. It exists only
// to constrain Append's argument at compile time; the event_type
// discriminator itself is written out by EncodeEvent via eventEnvelope.
type Event interface {
	eventType() EventType
}
