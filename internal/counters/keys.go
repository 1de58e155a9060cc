package counters

const keyPrefixAds = "ads"

// Counter field names.
const (
	FieldImpressions = "impressions"
	FieldClicks      = "clicks"
	FieldConversions = "conversions"
	FieldLastEvent   = "last_event_at"
)

func counterKey(adID, field string) string {
	return keyPrefixAds + ":" + adID + ":" + field
}
