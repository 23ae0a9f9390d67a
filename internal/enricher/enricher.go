package enricher

import (
	"net"
	"time"

	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"github.com/gosight/slidetrack/internal/model"
)

// Enricher annotates received snapshots with device class and location
type Enricher struct {
	geoIP *geoip2.Reader
	now   func() time.Time
}

func NewEnricher(geoIPPath string) *Enricher {
	var geoIP *geoip2.Reader
	if geoIPPath != "" {
		reader, err := geoip2.Open(geoIPPath)
		if err != nil {
			log.Warn().Err(err).Str("path", geoIPPath).Msg("GeoIP database unavailable, location enrichment disabled")
		} else {
			geoIP = reader
		}
	}

	return &Enricher{
		geoIP: geoIP,
		now:   time.Now,
	}
}

// Enrich wraps snap with server-side metadata. The user agent reported in
// the snapshot's device info wins over the request header.
func (e *Enricher) Enrich(snap model.Snapshot, transport, userAgentString, clientIP string) *model.EnrichedSnapshot {
	enriched := &model.EnrichedSnapshot{
		Snapshot:   snap,
		ReceivedAt: e.now().UnixMilli(),
		Transport:  transport,
		ClientIP:   stripPort(clientIP),
	}

	if snap.DeviceInfo.UserAgent != "" {
		userAgentString = snap.DeviceInfo.UserAgent
	}

	// Parse user agent
	if userAgentString != "" {
		ua := useragent.New(userAgentString)
		enriched.Browser, enriched.BrowserVersion = ua.Browser()
		enriched.OS = ua.OS()
		enriched.DeviceType = getDeviceType(ua, snap.DeviceInfo)
	} else if snap.DeviceInfo.IsMobile {
		enriched.DeviceType = "mobile"
	}

	// GeoIP lookup
	if e.geoIP != nil && enriched.ClientIP != "" {
		if ip := net.ParseIP(enriched.ClientIP); ip != nil {
			record, err := e.geoIP.City(ip)
			if err == nil {
				enriched.Country = record.Country.IsoCode
				if name, ok := record.City.Names["en"]; ok {
					enriched.City = name
				}
			}
		}
	}

	return enriched
}

func getDeviceType(ua *useragent.UserAgent, device model.DeviceInfo) string {
	if ua.Bot() {
		return "bot"
	}
	if ua.Mobile() || device.IsMobile {
		return "mobile"
	}
	return "desktop"
}

func stripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (e *Enricher) Close() {
	if e.geoIP != nil {
		e.geoIP.Close()
	}
}
