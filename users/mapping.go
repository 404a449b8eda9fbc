package users

import (
	"github.com/goliatone/go-repository-ports/model"
	"github.com/goliatone/go-repository-ports/repository"
)

// Mapping binds User to UserSchema.
func Mapping() repository.Mapping[User, UserSchema] {
	return repository.Mapping[User, UserSchema]{
		Entity:     "User",
		PrimaryKey: PrimaryKey,
		Relations:  map[string]string{"posts": "Posts"},
		Columns: []repository.Column[User, UserSchema]{
			{
				Name: "id", Kind: repository.KindText, Generated: true,
				IsSet: func(u User) bool { return u.ID != "" },
				Apply: func(dst *UserSchema, u User) { dst.ID = u.ID },
			},
			{
				Name: "name", Kind: repository.KindText,
				IsSet:  func(u User) bool { return u.Name.IsSet() },
				IsNull: func(u User) bool { return u.Name.IsNull() },
				Apply:  func(dst *UserSchema, u User) { dst.Name = u.Name.Ptr() },
			},
			{
				Name: "email", Kind: repository.KindText,
				IsSet:  func(u User) bool { return u.Email.IsSet() },
				IsNull: func(u User) bool { return u.Email.IsNull() },
				Apply:  func(dst *UserSchema, u User) { dst.Email = u.Email.Ptr() },
			},
			{
				Name: "age", Kind: repository.KindInt,
				IsSet:  func(u User) bool { return u.Age.IsSet() },
				IsNull: func(u User) bool { return u.Age.IsNull() },
				Apply:  func(dst *UserSchema, u User) { dst.Age = u.Age.Ptr() },
			},
			{
				Name: "created_at", Kind: repository.KindTime, Generated: true,
				IsSet: func(u User) bool { return !u.CreatedAt.IsZero() },
				Apply: func(dst *UserSchema, u User) { dst.CreatedAt = u.CreatedAt },
			},
			{
				Name: "updated_at", Kind: repository.KindTime, Generated: true, Touch: true,
				IsSet: func(u User) bool { return !u.UpdatedAt.IsZero() },
				Apply: func(dst *UserSchema, u User) { dst.UpdatedAt = u.UpdatedAt },
			},
		},
		ToModel: userFromSchema,
	}
}

func userFromSchema(s *UserSchema) User {
	u := User{
		ID:        s.ID,
		Name:      model.FromPtr(s.Name),
		Email:     model.FromPtr(s.Email),
		Age:       model.FromPtr(s.Age),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if len(s.Posts) > 0 {
		u.Posts = make([]Post, 0, len(s.Posts))
		for _, p := range s.Posts {
			u.Posts = append(u.Posts, postFromSchema(p))
		}
	}
	return u
}

// PostMapping binds Post to PostSchema.
func PostMapping() repository.Mapping[Post, PostSchema] {
	return repository.Mapping[Post, PostSchema]{
		Entity:     "Post",
		PrimaryKey: "id",
		Columns: []repository.Column[Post, PostSchema]{
			{
				Name: "id", Kind: repository.KindText, Generated: true,
				IsSet: func(p Post) bool { return p.ID != "" },
				Apply: func(dst *PostSchema, p Post) { dst.ID = p.ID },
			},
			{
				Name: "user_id", Kind: repository.KindText,
				IsSet: func(p Post) bool { return p.UserID.IsSet() },
				Apply: func(dst *PostSchema, p Post) { dst.UserID = p.UserID.Value() },
			},
			{
				Name: "title", Kind: repository.KindText,
				IsSet:  func(p Post) bool { return p.Title.IsSet() },
				IsNull: func(p Post) bool { return p.Title.IsNull() },
				Apply:  func(dst *PostSchema, p Post) { dst.Title = p.Title.Ptr() },
			},
			{
				Name: "created_at", Kind: repository.KindTime, Generated: true,
				IsSet: func(p Post) bool { return !p.CreatedAt.IsZero() },
				Apply: func(dst *PostSchema, p Post) { dst.CreatedAt = p.CreatedAt },
			},
		},
		ToModel: postFromSchema,
	}
}

func postFromSchema(s *PostSchema) Post {
	return Post{
		ID:        s.ID,
		UserID:    model.Set(s.UserID),
		Title:     model.FromPtr(s.Title),
		CreatedAt: s.CreatedAt,
	}
}
