package db

import (
	"context"

	"gorm.io/gorm"
)

// SeedDummyData fills the database with a small development data set: one
// teacher with a classroom and a couple of enrolled students. Only used by
// cmd/seed, never by the server itself.
func SeedDummyData(ctx context.Context, database *gorm.DB) error {
	teacher1 := Teacher{
		Email: "m.devries@example-school.nl",
		Name:  "Marieke de Vries",
	}
	if err := gorm.G[Teacher](database).Create(ctx, &teacher1); err != nil {
		return err
	}

	classroom1 := Classroom{
		Name:      "Informatica 4B",
		TeacherID: teacher1.ID,
		JoinCode:  "INF4B-7301",
	}
	if err := gorm.G[Classroom](database).Create(ctx, &classroom1); err != nil {
		return err
	}

	students := []Student{
		{Email: "j.bakker@example-school.nl", Name: "Jesse Bakker"},
		{Email: "s.jansen@example-school.nl", Name: "Sara Jansen"},
	}
	for i := range students {
		if err := gorm.G[Student](database).Create(ctx, &students[i]); err != nil {
			return err
		}
		membership := ClassroomMembership{
			ClassroomID: classroom1.ID,
			StudentID:   students[i].ID,
		}
		if err := gorm.G[ClassroomMembership](database).Create(ctx, &membership); err != nil {
			return err
		}
	}

	return nil
}
