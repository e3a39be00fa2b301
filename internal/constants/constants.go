// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort             = "8080"
	DefaultDBPath           = "spotdown.db"
	DefaultScratchDir       = "tmp"
	DefaultBlobDir          = "blobs"
	DefaultJobConcurrency   = 5
	DefaultTrackConcurrency = 10
	DefaultPollInterval     = 5 * time.Second
	DefaultStuckJobTimeout  = 30 * time.Minute
	DefaultSweepInterval    = 10 * time.Minute
	DefaultExpiration       = 15 * time.Minute
	DefaultReclaimDelay     = 10 * time.Minute
	DefaultPlaylistCacheTTL = 10 * time.Minute
	DefaultHTTPTimeout      = 30 * time.Second
	ImageHTTPTimeout        = 5 * time.Second
	DefaultRetryCount       = 3
	DefaultRetryBase        = 1 * time.Second
	DefaultRequestsPerSec   = 10
	DefaultFailureLimit     = 15
	DefaultS3Region         = "auto"
)

// Spotify API
const (
	DefaultSpotifyAPIURL   = "https://api.spotify.com/v1"
	DefaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"
	SpotifyPageSize        = 100
	SpotifyTrackFields     = "next,items(track(id,name,duration_ms,artists(name),album(images)))"
)

// Extraction
const (
	DefaultYTDLPPath   = "yt-dlp"
	DefaultFFmpegPath  = "ffmpeg"
	DefaultCookiesPath = "cookies.txt"
	ExtractUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	SearchResultCount  = 3
)

// Provider timeouts
const (
	SoundCloudTimeout = 60 * time.Second
	VimeoTimeout      = 60 * time.Second
	YouTubeTimeout    = 90 * time.Second
)

// Duration window margins
const (
	ShortTrackLimit  = 60
	MediumTrackLimit = 600
	ShortMargin      = 5
	MediumMargin     = 20
)

// MIME Types
const (
	MimeTypeMP3  = "audio/mpeg"
	MimeTypeZip  = "application/zip"
	MimeTypeJPEG = "image/jpeg"
)

// File Extensions
const (
	ExtMP3 = ".mp3"
	ExtZip = ".zip"
)

// Blob layout
const (
	TracksPrefix    = "tracks"
	MaxBatchDelete  = 1000
	FilesRoutePath  = "/files"
	RealtimeTopic   = "task_"
	SubscriberQueue = 32
)

// Tagging
const (
	DefaultTagComment  = "Downloaded via spotdown"
	DefaultTagLanguage = "eng"
)

// User facing messages
const (
	MsgNoTracksDownloaded  = "No track was downloaded successfully."
	MsgEmptyPlaylist       = "Playlist has no tracks"
	MsgPlaylistFailed      = "Failed to fetch playlist"
	MsgBundleFailed        = "Bundle could not be created"
	MsgBundleFailedSuffix  = "individual tracks remain available"
	MsgNotFoundAnySource   = "not found on any source"
	MsgRemovedFromPlaylist = "No longer in the playlist"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

// Characters to sanitize from filesystem paths
const InvalidPathChars = "<>:\"/\\|?*"
