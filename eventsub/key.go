package eventsub

import "encoding/json"

// SubscriptionKey derives the canonical identity of a subscription from its
// event type and condition. encoding/json writes map keys in sorted order, so
// equal conditions produce byte-identical keys no matter how the map was built.
func SubscriptionKey(typ string, condition map[string]string) string {
	if condition == nil {
		condition = map[string]string{}
	}
	b, _ := json.Marshal(condition) // map[string]string cannot fail to marshal
	return typ + ":" + string(b)
}
