package template

import "fmt"

// defaultTemplates are the stock cloud-image templates seeded by
// "vmfinder init". Base image paths are left empty; operators point them
// at downloaded cloud images before first use.
var defaultTemplates = []Template{
	{
		Name:              "ubuntu-20.04",
		OS:                "ubuntu",
		Version:           "20.04",
		Arch:              "x86_64",
		OSVariant:         "ubuntu20.04",
		Description:       "Ubuntu 20.04 LTS (Focal Fossa)",
		DefaultDiskGB:     20,
		DefaultUser:       "ubuntu",
		CloudImageSupport: true,
	},
	{
		Name:              "ubuntu-22.04",
		OS:                "ubuntu",
		Version:           "22.04",
		Arch:              "x86_64",
		OSVariant:         "ubuntu22.04",
		Description:       "Ubuntu 22.04 LTS (Jammy Jellyfish)",
		DefaultDiskGB:     20,
		DefaultUser:       "ubuntu",
		CloudImageSupport: true,
	},
	{
		Name:              "ubuntu-24.04",
		OS:                "ubuntu",
		Version:           "24.04",
		Arch:              "x86_64",
		OSVariant:         "ubuntu24.04",
		Description:       "Ubuntu 24.04 LTS (Noble Numbat)",
		DefaultDiskGB:     20,
		DefaultUser:       "ubuntu",
		CloudImageSupport: true,
	},
	{
		Name:              "debian-11",
		OS:                "debian",
		Version:           "11",
		Arch:              "x86_64",
		OSVariant:         "debian11",
		Description:       "Debian 11 (Bullseye)",
		DefaultDiskGB:     20,
		DefaultUser:       "debian",
		CloudImageSupport: true,
	},
	{
		Name:              "debian-12",
		OS:                "debian",
		Version:           "12",
		Arch:              "x86_64",
		OSVariant:         "debian12",
		Description:       "Debian 12 (Bookworm)",
		DefaultDiskGB:     20,
		DefaultUser:       "debian",
		CloudImageSupport: true,
	},
	{
		Name:              "debian-13",
		OS:                "debian",
		Version:           "13",
		Arch:              "x86_64",
		OSVariant:         "debian13",
		Description:       "Debian 13 (Trixie)",
		DefaultDiskGB:     20,
		DefaultUser:       "debian",
		CloudImageSupport: true,
	},
}

// WriteDefaults seeds dir with the stock templates. Existing template
// files of the same name are overwritten.
func WriteDefaults(dir string) error {
	registry, err := NewRegistry(dir)
	if err != nil {
		return err
	}

	for i := range defaultTemplates {
		tpl := defaultTemplates[i]
		if err := registry.Save(&tpl); err != nil {
			return fmt.Errorf("failed to seed template %q: %w", tpl.Name, err)
		}
	}
	return nil
}
