package provider

import "github.com/Mindburn-Labs/boundary/pkg/canonicalize"

// EndpointFingerprint returns a stable, non-reversible identifier for the
// concrete endpoint a call was dispatched to: the digest of the string
// "provider:<tag>|base_url:<url>|model:<model>". It never embeds the API key
// or any other secret, and never appears anywhere but the
// model_call_dispatched audit event.
func EndpointFingerprint(providerTag, baseURL, model string) string {
	return canonicalize.DigestOfBytes([]byte("provider:" + providerTag + "|base_url:" + baseURL + "|model:" + model))
}
