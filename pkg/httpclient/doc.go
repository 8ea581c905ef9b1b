// Package httpclient builds the outbound HTTP clients used by rulegen: the
// upstream catalog and LLM-config fetches and the vendor LLM providers.
//
// Every client is composed from the same layers:
//   - request logging with sanitized URLs
//   - User-Agent and static header injection
//   - request ID and trace context propagation
//   - optional retries with exponential backoff and Retry-After support
//
// # Usage
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "rulegen-upstream/1.0"
//	cfg.Headers = map[string]string{"Authorization": "Bearer " + token}
//	client, err := httpclient.New(cfg)
//	if err != nil {
//	    return err
//	}
//
// # Retry Behavior
//
// GET, HEAD and OPTIONS are retried on transport errors and on 408, 429 and
// 5xx responses. Other methods are only retried when RetryNonIdempotent is
// set and the request body can be replayed. LLM providers disable transport
// retries and rely on llm.RetryableProvider instead, which understands
// provider error classes.
package httpclient
