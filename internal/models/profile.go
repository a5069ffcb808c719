package models

import (
	"encoding/json"
	"fmt"
)

// DisplayProfile holds the fields every platform profile normalizes to.
type DisplayProfile struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Followers int64  `json:"followers"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// Profile is implemented by each per-platform profile variant.
type Profile interface {
	Platform() PlatformType
	Normalize() DisplayProfile
}

// TikTokProfile is the profile returned by the TikTok user info endpoint.
type TikTokProfile struct {
	OpenID          string `json:"open_id"`
	UnionID         string `json:"union_id,omitempty"`
	DisplayName     string `json:"display_name"`
	Username        string `json:"username,omitempty"`
	AvatarURL       string `json:"avatar_url,omitempty"`
	Bio             string `json:"bio_description,omitempty"`
	ProfileDeepLink string `json:"profile_deep_link,omitempty"`
	FollowerCount   int64  `json:"follower_count"`
	FollowingCount  int64  `json:"following_count"`
	LikesCount      int64  `json:"likes_count"`
	VideoCount      int64  `json:"video_count"`
	Degraded        bool   `json:"degraded,omitempty"`
}

func (p *TikTokProfile) Platform() PlatformType { return TikTok }

func (p *TikTokProfile) Normalize() DisplayProfile {
	return DisplayProfile{Name: p.DisplayName, AvatarURL: p.AvatarURL, Followers: p.FollowerCount, Degraded: p.Degraded}
}

// YouTubeProfile is the channel snippet and statistics for the authenticated channel.
type YouTubeProfile struct {
	ChannelID       string `json:"channel_id"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	CustomURL       string `json:"custom_url,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	SubscriberCount int64  `json:"subscriber_count"`
	ViewCount       int64  `json:"view_count"`
	VideoCount      int64  `json:"video_count"`
	Degraded        bool   `json:"degraded,omitempty"`
}

func (p *YouTubeProfile) Platform() PlatformType { return YouTube }

func (p *YouTubeProfile) Normalize() DisplayProfile {
	return DisplayProfile{Name: p.Title, AvatarURL: p.ThumbnailURL, Followers: p.SubscriberCount, Degraded: p.Degraded}
}

// BasicProfile stores the account name for platforms without a profile client.
type BasicProfile struct {
	Kind PlatformType `json:"-"`
	Name string       `json:"name"`
}

func (p *BasicProfile) Platform() PlatformType { return p.Kind }

func (p *BasicProfile) Normalize() DisplayProfile {
	return DisplayProfile{Name: p.Name}
}

type profileEnvelope struct {
	Platform PlatformType    `json:"platform"`
	Data     json.RawMessage `json:"data"`
}

// MarshalProfile encodes p with its platform tag. A nil profile encodes to nil.
func MarshalProfile(p Profile) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}
	return json.Marshal(profileEnvelope{Platform: p.Platform(), Data: data})
}

// UnmarshalProfile decodes a tagged profile produced by [MarshalProfile].
func UnmarshalProfile(data []byte) (Profile, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var env profileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}

	var p Profile
	switch env.Platform {
	case TikTok:
		p = &TikTokProfile{}
	case YouTube:
		p = &YouTubeProfile{}
	case Instagram, Facebook, X:
		p = &BasicProfile{Kind: env.Platform}
	default:
		return nil, fmt.Errorf("unknown profile platform %q", env.Platform)
	}

	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s profile: %w", env.Platform, err)
	}
	return p, nil
}
