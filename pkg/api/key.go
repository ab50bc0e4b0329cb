package api

import (
	"sort"
	"strings"
)

// KeySeparator joins the two participant ids of a conversation key. Firebase
// uids never contain it.
const KeySeparator = "_"

// ConversationKey derives the id of the two-party conversation between idA
// and idB. The result does not depend on argument order.
func ConversationKey(idA, idB string) (string, error) {
	if idA == "" || idB == "" {
		return "", Invalid("conversation key needs two participant ids")
	}
	ids := []string{idA, idB}
	sort.Strings(ids)
	return strings.Join(ids, KeySeparator), nil
}
