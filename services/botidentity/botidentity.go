// Package botidentity picks a plausible locale/timezone/display-name
// triple for the bot joining a meeting, so the browser context presents a
// self-consistent locale/timezone pair and the joined participant doesn't
// look anomalous to meeting hosts inspecting locale metadata.
package botidentity

import "hash/fnv"

type Identity struct {
	DisplayName string
	Locale      string
	Timezone    string
}

type region struct {
	locale   string
	timezone string
}

// regions is indexed deterministically per meeting so repeated joins of
// the same meeting_id present consistently.
var regions = []region{
	{locale: "en-US", timezone: "America/New_York"},
	{locale: "en-US", timezone: "America/Los_Angeles"},
	{locale: "en-GB", timezone: "Europe/London"},
	{locale: "en-AU", timezone: "Australia/Sydney"},
	{locale: "en-IN", timezone: "Asia/Kolkata"},
}

// Pick deterministically selects a region for meetingID (so a meeting's bot
// identity is stable across retried joins) and pairs it with displayName.
func Pick(meetingID, displayName string) Identity {
	h := fnv.New32a()
	_, _ = h.Write([]byte(meetingID))
	r := regions[int(h.Sum32())%len(regions)]
	return Identity{DisplayName: displayName, Locale: r.locale, Timezone: r.timezone}
}
