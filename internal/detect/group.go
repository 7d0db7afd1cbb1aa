package detect

import "github.com/tinytelemetry/accesslens/internal/model"

// IPGroup is the records of one IP in input order.
type IPGroup struct {
	IP      string
	Records []model.LogRecord
}

// GroupByIP partitions records by IP. Groups are returned in order of the
// IP's first appearance. Records without an IP are left out.
func GroupByIP(records []model.LogRecord) []IPGroup {
	index := make(map[string]int)
	var groups []IPGroup
	for _, r := range records {
		if r.IP == "" {
			continue
		}
		i, ok := index[r.IP]
		if !ok {
			i = len(groups)
			index[r.IP] = i
			groups = append(groups, IPGroup{IP: r.IP})
		}
		groups[i].Records = append(groups[i].Records, r)
	}
	return groups
}
