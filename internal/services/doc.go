// Package services defines the [Reader], [Writer] and [Service] capabilities the sync engine needs
// from a music platform and implements them for Spotify and YouTube Music.
//
// # Raw tracks
//
// Clients never decode playlist items into domain types. They return [RawTrack] values and
// [Normalize] converts them to [models.TrackRef]. [FetchSnapshot] combines both steps.
//
// # Spotify
//
// [SpotifyService] talks to the Web API with an [oauth2] transport that refreshes the
// configured token. Adds are not idempotent: repeating an accepted add inserts a second copy.
//
// # YouTube Music
//
// [YouTubeService] talks to the ytmusicapi proxy. The headers file path travels in the
// X-Auth-File header. Adds disable duplicates, so repeating one is harmless.
//
// # Errors
//
// Every failed call is a [shared.PlatformError] classified by HTTP status:
//   - 401/403: [shared.ErrAuthorization]
//   - 404: [shared.ErrNotFound]
//   - 408, 429, 5xx and transport failures: [shared.ErrTransient]
//   - other 4xx: [shared.ErrAPIRequest]
package services
