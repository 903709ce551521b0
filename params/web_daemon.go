package params

type WebDaemonConfig struct {
	ListenerConfig

	// WebhookVerifyToken, if set, must match hub.verify_token
	// on the subscription handshake.
	WebhookVerifyToken string

	// BackfillToken, if set, is required to trigger a backfill over HTTP.
	BackfillToken string
}

func DefaultWebListenerConfig() ListenerConfig {
	return ListenerConfig{
		Network: "tcp",
		Address: "localhost:3000",
	}
}

func DefaultWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		ListenerConfig: DefaultWebListenerConfig(),
	}
}

func DefaultTestWebDaemonConfig() *WebDaemonConfig {
	return &WebDaemonConfig{
		ListenerConfig: ListenerConfig{
			Network: "tcp",
			Address: "localhost:3333",
		},
	}
}
