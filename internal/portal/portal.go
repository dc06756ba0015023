// Package portal drives the authenticated navigation of the lecture portal:
// login, pinned-course discovery, per-course video listing, and per-video
// stream/metadata extraction.
package portal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/maribox/rbg-live-dl/internal/browser"
	"github.com/maribox/rbg-live-dl/internal/common/config"
	"github.com/maribox/rbg-live-dl/internal/naming"
	"github.com/maribox/rbg-live-dl/pkg/models"
)

// Selectors for the portal's rendered DOM. Opaque to the rest of the
// pipeline; when the portal changes its markup, this is the list to fix.
const (
	loginEntrySelector   = "#user-context > a"
	loginSSOSelector     = "#content > section > article > a"
	usernameSelector     = "#username"
	passwordSelector     = "#password"
	loginButtonSelector  = "#btnLogin"
	logoutMarkerSelector = "#user-context a[href*='logout']"

	pinnedCoursesSelector = "#pinned-courses a"
	videoCardSelector     = "#content a[href*='/w/']"

	streamSourceSelector = "#video-comb_html5_api > source:nth-child(1)"
	courseLinkSelector   = `.sm\:flex-row > div:nth-child(1) > a:nth-child(1)`
	courseLabelSelector  = `.sm\:flex-row > div:nth-child(1) > a:nth-child(1) span.hover\:text-1`
	videoTitleSelector   = "h1.font-bold"
)

// ErrStreamNotFound reports a video page whose player carries no usable
// stream source. Hard per-video failure; the orchestrator decides whether
// to retry the whole resolution.
var ErrStreamNotFound = errors.New("stream URL not found")

// ErrAuthenticationFailed reports that the post-login marker never
// appeared. Fatal for the run.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Client performs portal navigation over a browser session.
type Client struct {
	session browser.Session
	base    *url.URL
	timeout time.Duration
	log     *logrus.Logger
}

// NewClient builds a portal client for the configured base URL.
func NewClient(session browser.Session, cfg *config.PortalConfig, log *logrus.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid portal base URL %s: %w", cfg.BaseURL, err)
	}

	timeout := time.Duration(cfg.ElementTimeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		session: session,
		base:    base,
		timeout: timeout,
		log:     log,
	}, nil
}

// Login walks the portal's SSO login flow and blocks until the logout
// control renders, the marker of an authenticated session. Runs once per
// process; the session's cookies keep authentication alive afterwards.
func (c *Client) Login(creds *models.Credentials) error {
	c.log.WithField("portal", c.base.String()).Info("Logging in")

	if err := c.session.Navigate(c.base.String()); err != nil {
		return err
	}
	if err := c.session.Click(loginEntrySelector, c.timeout); err != nil {
		return fmt.Errorf("login entry: %w", err)
	}
	if err := c.session.Click(loginSSOSelector, c.timeout); err != nil {
		return fmt.Errorf("login SSO link: %w", err)
	}
	if err := c.session.SendKeys(usernameSelector, creds.Username, c.timeout); err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := c.session.SendKeys(passwordSelector, creds.Password, c.timeout); err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := c.session.Click(loginButtonSelector, c.timeout); err != nil {
		return fmt.Errorf("login button: %w", err)
	}

	if err := c.session.WaitForElement(logoutMarkerSelector, c.timeout); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	c.log.Info("Logged in successfully")
	return nil
}

// DiscoverCourses snapshots the pinned-courses navigation region and
// returns one course per anchor, in DOM order. Anchors without an href are
// skipped; a region that never renders fails the whole run.
func (c *Client) DiscoverCourses() ([]models.Course, error) {
	if err := c.session.Navigate(c.base.String()); err != nil {
		return nil, err
	}

	anchors, err := c.session.Anchors(pinnedCoursesSelector, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("pinned courses: %w", err)
	}

	var courses []models.Course
	for _, a := range anchors {
		if a.Href == "" {
			continue
		}
		courses = append(courses, models.Course{
			Name: normalizeText(a.Text),
			URL:  resolveHref(c.base, a.Href),
		})
	}

	c.log.WithField("courses", len(courses)).Info("Discovered pinned courses")
	return courses, nil
}

// ListVideos returns the recorded-session page URLs of one course, in the
// portal's own order. The portal lists newest first; ordinal assignment
// downstream leans on that.
func (c *Client) ListVideos(courseURL string) ([]models.VideoRef, error) {
	if err := c.session.Navigate(courseURL); err != nil {
		return nil, err
	}

	anchors, err := c.session.Anchors(videoCardSelector, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("video cards: %w", err)
	}

	var refs []models.VideoRef
	for _, a := range anchors {
		if a.Href == "" {
			continue
		}
		refs = append(refs, models.VideoRef{PageURL: resolveHref(c.base, a.Href)})
	}

	c.log.WithFields(logrus.Fields{
		"course": courseURL,
		"videos": len(refs),
	}).Info("Listed course videos")
	return refs, nil
}

// ResolveMetadata loads a video page fresh and extracts the stream URL and
// naming. No caching: the orchestrator re-invokes this on retry exactly so
// a page that failed to render once gets a clean second chance.
func (c *Client) ResolveMetadata(pageURL string) (models.VideoMetadata, error) {
	var meta models.VideoMetadata

	if err := c.session.Navigate(pageURL); err != nil {
		return meta, err
	}

	streamURL, ok, err := c.session.Attribute(streamSourceSelector, "src", c.timeout)
	if err != nil {
		return meta, fmt.Errorf("stream source: %w", err)
	}
	streamURL = strings.TrimSpace(streamURL)
	if !ok || streamURL == "" {
		return meta, fmt.Errorf("%w: %s", ErrStreamNotFound, pageURL)
	}

	courseHref, _, err := c.session.Attribute(courseLinkSelector, "href", c.timeout)
	if err != nil {
		return meta, fmt.Errorf("course link: %w", err)
	}
	yearOrPath := naming.DeriveYearOrFallback(hrefPath(courseHref))

	label, err := c.session.Text(courseLabelSelector, c.timeout)
	if err != nil {
		return meta, fmt.Errorf("course label: %w", err)
	}

	title, err := c.session.Text(videoTitleSelector, c.timeout)
	if err != nil {
		return meta, fmt.Errorf("video title: %w", err)
	}

	meta = models.VideoMetadata{
		StreamURL:  streamURL,
		FolderName: naming.SanitizeName(normalizeText(label) + " - " + yearOrPath),
		FileStem:   naming.SanitizeName(title),
	}
	return meta, nil
}

// resolveHref resolves a possibly relative href against the portal origin.
// Malformed hrefs fall through unchanged; the navigation that follows will
// surface the real error.
func resolveHref(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// hrefPath extracts the path component of an href, absolute or relative.
func hrefPath(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return u.Path
}

// normalizeText collapses whitespace runs to single spaces and trims.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
