package postgres

import (
	"context"
	"database/sql"

	alarms "shopfloor-cloud/internal/alarms/domain"
	subscriptions "shopfloor-cloud/internal/subscriptions/domain"
)

// ResolveGroup returns the distinct active delivery targets of one
// subscription group. The "none" method never reaches the outbox.
func (s *Store) ResolveGroup(ctx context.Context, group string) ([]subscriptions.Target, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `
SELECT DISTINCT sub."user", sub.method, sub.address, COALESCE(sub.address_name, '')
FROM alarm_subscriptions sub
JOIN alarm_subscription_group_map map ON map.subscription_id = sub.id
JOIN alarm_subscription_groups grp ON grp.id = map.group_id
WHERE grp.name = $1
  AND sub.status = $2
  AND sub.method <> $3
ORDER BY sub."user" ASC, sub.method ASC`, group, subscriptions.StatusActive, alarms.MethodNone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []subscriptions.Target
	for rows.Next() {
		var target subscriptions.Target
		var address sql.NullString
		if err := rows.Scan(&target.User, &target.Method, &address, &target.AddressName); err != nil {
			return nil, err
		}
		target.Address = address.String
		result = append(result, target)
	}
	return result, rows.Err()
}
