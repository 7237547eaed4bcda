package db

type EmailTemplate struct {
	Name            string
	SubjectTemplate string
	BodyTemplate    string
}

type NotificationRequest struct {
	ID        int64
	Email     string
	MovieName string
	Location  string
	StartDate string
	EndDate   string
	Status    Status
	CreatedAt int64
	UpdatedAt int64
}
