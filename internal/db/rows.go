package db

import "database/sql"

func scanRequests(rows *sql.Rows) ([]NotificationRequest, error) {
	defer rows.Close()
	var items []NotificationRequest
	for rows.Next() {
		var i NotificationRequest
		if err := rows.Scan(
			&i.ID,
			&i.Email,
			&i.MovieName,
			&i.Location,
			&i.StartDate,
			&i.EndDate,
			&i.Status,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
