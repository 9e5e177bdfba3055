// Package emotepool manages a shared pool of fixed-capacity backend slots
// and the metadata registry describing every emote stored across them.
//
// It exposes a single Service interface that orchestrates emote creation
// (blacklist check, slot allocation, external create, registry insert),
// mutation (rename, description, preservation, NSFW marking), removal,
// usage tracking, and per-user/per-guild preference resolution.
// Implementations of repositories (memory, Postgres) and external backends
// (memory, S3) are provided under subpackages.
//
// Two process-wide background tasks accompany the service: the slot
// Directory enumerates eligible containers once at startup and publishes a
// one-shot readiness signal, and the DecayEngine periodically evicts
// emotes that are old, unused and not preserved.
package emotepool
