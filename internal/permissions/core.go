package permissions

func init() {
	perms := []*Permission{
		{
			ID:          "institution.view",
			Module:      "registry",
			Description: "View institutions",
		},
		{
			ID:          "institution.register",
			Module:      "registry",
			DependsOn:   []string{"institution.view"},
			Description: "Register new institutions",
		},
		{
			ID:          "institution.manage",
			Module:      "registry",
			DependsOn:   []string{"institution.view"},
			Description: "Toggle institution verified and active flags",
		},
		{
			ID:          "identity.register",
			Module:      "registry",
			Description: "Register identities and their key material",
		},
		{
			ID:          "role.grant",
			Module:      "registry",
			Description: "Grant and revoke admin and university-admin roles",
		},
		{
			ID:          "credential.view",
			Module:      "credentials",
			Description: "View public credential records",
		},
		{
			ID:          "credential.create",
			Module:      "credentials",
			DependsOn:   []string{"credential.view"},
			Description: "Issue credentials and transcripts",
		},
		{
			ID:          "credential.verify",
			Module:      "credentials",
			DependsOn:   []string{"credential.view"},
			Description: "Approve or reject issued credentials",
		},
		{
			ID:          "credential.read_encrypted",
			Module:      "credentials",
			DependsOn:   []string{"credential.view"},
			Description: "Read ciphertext handles of credentials",
		},
		{
			ID:          "audit.view",
			Module:      "registry",
			Description: "View audit logs",
		},
	}

	for _, perm := range perms {
		if err := Register(perm); err != nil {
			panic(err)
		}
	}
}
