// # Realtime Voice-Agent Session Orchestrator
//
// This repository provides a Go package that connects AI voice agents to live video-call meetings. It establishes bidirectional streaming sessions with the Gemini Live API, forwards participant transcripts to the model, relays the model's audio responses back into the call as custom events, and keeps the persisted meeting record consistent with call-platform webhook events.
package orchestrator
